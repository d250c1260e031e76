package sync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dexpositosanchez/fyntra/internal/queue"
)

// operation is a decoded queue entry, ready to dispatch to its family's handler
type operation interface {
	family() string
}

type createOp struct {
	resource string
	localID  int64 // provisional id named by the endpoint, 0 when absent
	payload  json.RawMessage
}

type updateOp struct {
	resource string
	id       int64
	payload  json.RawMessage
}

type deleteOp struct {
	resource string
	id       int64
}

func (o createOp) family() string { return o.resource }
func (o updateOp) family() string { return o.resource }
func (o deleteOp) family() string { return o.resource }

// parseEndpoint splits "family" or "family/id"
func parseEndpoint(endpoint string) (string, int64, bool, error) {
	family, rawID, hasID := strings.Cut(strings.Trim(endpoint, "/"), "/")
	if family == "" {
		return "", 0, false, fmt.Errorf("%w: empty endpoint", ErrUnknownOperation)
	}
	if !hasID {
		return family, 0, false, nil
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id == 0 {
		return "", 0, false, fmt.Errorf("%w: malformed endpoint %q", ErrUnknownOperation, endpoint)
	}
	return family, id, true, nil
}

// decodeOperation turns a queue entry into a typed operation. Entries that can
// never succeed return an error wrapping ErrUnknownOperation.
func decodeOperation(op *queue.PendingOperation, endpoint string) (operation, error) {
	family, id, hasID, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	switch op.OperationType {
	case queue.OperationCreate:
		if len(op.Data) == 0 || !json.Valid(op.Data) {
			return nil, fmt.Errorf("%w: create without a valid body", ErrUnknownOperation)
		}
		return createOp{resource: family, localID: id, payload: op.Data}, nil

	case queue.OperationUpdate:
		if !hasID {
			return nil, fmt.Errorf("%w: update without an id", ErrUnknownOperation)
		}
		if len(op.Data) == 0 || !json.Valid(op.Data) {
			return nil, fmt.Errorf("%w: update without a valid body", ErrUnknownOperation)
		}
		return updateOp{resource: family, id: id, payload: op.Data}, nil

	case queue.OperationDelete:
		if !hasID {
			return nil, fmt.Errorf("%w: delete without an id", ErrUnknownOperation)
		}
		return deleteOp{resource: family, id: id}, nil

	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownOperation, op.OperationType)
	}
}

func itemEndpoint(family string, id int64) string {
	return family + "/" + strconv.FormatInt(id, 10)
}
