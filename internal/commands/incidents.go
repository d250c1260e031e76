package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/app"
	"github.com/dexpositosanchez/fyntra/internal/incident"
	"github.com/dexpositosanchez/fyntra/internal/remote"
	"github.com/dexpositosanchez/fyntra/internal/utils"
	"github.com/urfave/cli/v2"
)

// IncidentsCommand returns the CLI command for working with incidents
func IncidentsCommand() *cli.Command {
	return &cli.Command{
		Name:    "incidents",
		Aliases: []string{"incidencias", "inc"},
		Usage:   "List and edit incidents, online or offline",
		Description: "Reads always come from the local cache. Changes go straight to the API " +
			"when online and are queued for the next sync when offline.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached incidents",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show incidents with this sync status (synced, pending, error)",
					},
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "Reload the cache from the server first",
					},
				},
				Action: listIncidents,
			},
			{
				Name:      "show",
				Usage:     "Show one incident",
				ArgsUsage: "<id>",
				Action:    showIncident,
			},
			{
				Name:  "create",
				Usage: "Report a new incident",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "titulo", Aliases: []string{"t"}, Usage: "Title", Required: true},
					&cli.StringFlag{Name: "descripcion", Aliases: []string{"d"}, Usage: "Description"},
					&cli.StringFlag{Name: "prioridad", Aliases: []string{"p"}, Usage: "Priority (baja, media, alta, urgente)"},
					&cli.Int64Flag{Name: "inmueble", Aliases: []string{"i"}, Usage: "Property id", Required: true},
					&cli.Int64Flag{Name: "proveedor", Usage: "Assigned provider id"},
				},
				Action: createIncident,
			},
			{
				Name:      "update",
				Usage:     "Change fields of an incident",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "titulo", Aliases: []string{"t"}, Usage: "Title"},
					&cli.StringFlag{Name: "descripcion", Aliases: []string{"d"}, Usage: "Description"},
					&cli.StringFlag{Name: "prioridad", Aliases: []string{"p"}, Usage: "Priority"},
					&cli.StringFlag{Name: "estado", Aliases: []string{"e"}, Usage: "State (abierta, en_progreso, resuelta, cerrada)"},
					&cli.Int64Flag{Name: "proveedor", Usage: "Assigned provider id"},
				},
				Action: updateIncident,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete an incident",
				ArgsUsage: "<id>",
				Action:    deleteIncident,
			},
		},
	}
}

func listIncidents(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if c.Bool("refresh") {
		if err := application.Incidents.RefreshFromServer(c.Context); err != nil {
			utils.PrintWarning(fmt.Sprintf("Refresh failed, showing cached data: %s", describeRemoteError(err)))
		}
	}

	incidents, err := application.Incidents.List(c.Context)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to read incidents: %s", err))
		return fmt.Errorf("failed to list incidents: %w", err)
	}

	filter := incident.SyncStatus(strings.ToLower(c.String("status")))
	now := time.Now()

	rows := make([][]string, 0, len(incidents))
	for _, inc := range incidents {
		if filter != "" && inc.SyncStatus != filter {
			continue
		}
		rows = append(rows, []string{
			formatID(inc.ID),
			utils.Truncate(inc.Titulo, 40),
			inc.Estado,
			inc.Prioridad,
			propertyName(inc),
			syncLabel(inc),
			utils.FormatRelativeTime(inc.FechaAlta.Time, now),
		})
	}

	utils.PrintTable(
		[]string{"ID", "Título", "Estado", "Prioridad", "Inmueble", "Sync", "Alta"},
		rows,
		utils.TableOptions{Title: "Incidencias", Style: utils.DefaultTableOptions().Style},
	)

	if !application.Observer.IsOnline() {
		utils.PrintWarning("Offline: showing cached data")
	}
	return nil
}

func showIncident(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id, err := parseID(c)
	if err != nil {
		return err
	}

	inc, err := application.Incidents.GetByID(c.Context, id)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			utils.PrintError(fmt.Sprintf("Incident %d not found", id))
		}
		return fmt.Errorf("failed to get incident %d: %w", id, err)
	}

	utils.PrintHeading(inc.Titulo)
	utils.PrintKeyValue("ID", formatID(inc.ID))
	utils.PrintKeyValue("Estado", inc.Estado)
	utils.PrintKeyValue("Prioridad", inc.Prioridad)
	utils.PrintKeyValue("Inmueble", propertyName(inc))
	if inc.ProveedorID != nil {
		utils.PrintKeyValue("Proveedor", strconv.FormatInt(*inc.ProveedorID, 10))
	}
	utils.PrintKeyValue("Alta", formatTime(inc.FechaAlta.Time))
	if inc.FechaCierre != nil {
		utils.PrintKeyValue("Cierre", formatTime(inc.FechaCierre.Time))
	}
	utils.PrintKeyValue("Sync", syncLabel(inc))
	if inc.LastSyncAt != nil {
		utils.PrintKeyValue("Last sync", utils.FormatRelativeTime(*inc.LastSyncAt, time.Now()))
	}
	if inc.Descripcion != "" {
		fmt.Fprintln(utils.Output)
		fmt.Fprintln(utils.Output, inc.Descripcion)
	}
	return nil
}

func createIncident(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	payload := incident.IncidentCreate{
		Titulo:      c.String("titulo"),
		Descripcion: c.String("descripcion"),
		Prioridad:   c.String("prioridad"),
		InmuebleID:  c.Int64("inmueble"),
	}
	if c.IsSet("proveedor") {
		proveedor := c.Int64("proveedor")
		payload.ProveedorID = &proveedor
	}

	inc, err := application.Incidents.Create(c.Context, payload)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to create incident: %s", describeRemoteError(err)))
		return fmt.Errorf("failed to create incident: %w", err)
	}

	reportWrite(inc, fmt.Sprintf("Incident %s created", formatID(inc.ID)))
	return nil
}

func updateIncident(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var upd incident.IncidentUpdate
	for name, field := range map[string]**string{
		"titulo":      &upd.Titulo,
		"descripcion": &upd.Descripcion,
		"prioridad":   &upd.Prioridad,
		"estado":      &upd.Estado,
	} {
		if c.IsSet(name) {
			value := c.String(name)
			*field = &value
		}
	}
	if c.IsSet("proveedor") {
		proveedor := c.Int64("proveedor")
		upd.ProveedorID = &proveedor
	}

	if upd.IsEmpty() {
		utils.PrintWarning("Nothing to update")
		return nil
	}

	inc, err := application.Incidents.Update(c.Context, id, upd)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to update incident %d: %s", id, describeRemoteError(err)))
		return fmt.Errorf("failed to update incident %d: %w", id, err)
	}

	reportWrite(inc, fmt.Sprintf("Incident %s updated", formatID(inc.ID)))
	return nil
}

func deleteIncident(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := application.Incidents.Delete(c.Context, id); err != nil {
		utils.PrintError(fmt.Sprintf("Failed to delete incident %d: %s", id, describeRemoteError(err)))
		return fmt.Errorf("failed to delete incident %d: %w", id, err)
	}

	if application.Observer.IsOnline() && !incident.IsTemporaryID(id) {
		utils.PrintSuccess(fmt.Sprintf("Incident %d deleted", id))
	} else {
		utils.PrintSuccess(fmt.Sprintf("Incident %s marked for deletion", formatID(id)))
		utils.PrintInfo("It will be removed from the server on the next " + utils.Command("fyntra sync run"))
	}
	return nil
}

// reportWrite tells the user whether a change reached the server or was queued
func reportWrite(inc *incident.CachedIncident, message string) {
	utils.PrintSuccess(message)
	if inc.SyncStatus == incident.SyncStatusPending {
		utils.PrintWarning("Saved offline; it will sync when the connection is back")
	}
}

func parseID(c *cli.Context) (int64, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one incident id")
	}

	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid incident id %q", c.Args().First())
	}
	return id, nil
}

func formatID(id int64) string {
	if incident.IsTemporaryID(id) {
		return utils.Highlight(strconv.FormatInt(id, 10))
	}
	return strconv.FormatInt(id, 10)
}

func propertyName(inc *incident.CachedIncident) string {
	if inc.Inmueble != nil && inc.Inmueble.Nombre != "" {
		return inc.Inmueble.Nombre
	}
	return strconv.FormatInt(inc.InmuebleID, 10)
}

func syncLabel(inc *incident.CachedIncident) string {
	label := utils.ColorStatus(string(inc.SyncStatus))
	if inc.PendingAction != incident.PendingNone {
		label += " (" + string(inc.PendingAction) + ")"
	}
	return label
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func describeRemoteError(err error) string {
	switch remote.ClassifyError(err) {
	case remote.ErrorTypeAuth:
		return "not authorized, run " + utils.Command("fyntra auth login")
	case remote.ErrorTypeNetwork:
		return "server unreachable: " + err.Error()
	default:
		return err.Error()
	}
}
