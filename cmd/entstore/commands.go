package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/nerrad567/ent-store/internal/audit"
	"github.com/nerrad567/ent-store/internal/events"
	"github.com/nerrad567/ent-store/internal/infrastructure/mqtt"
	"github.com/nerrad567/ent-store/internal/kvstore"
	"github.com/nerrad567/ent-store/internal/propset"
	"github.com/nerrad567/ent-store/internal/skin"
	"github.com/nerrad567/ent-store/internal/snapshot"
	"github.com/nerrad567/ent-store/internal/store"
	"github.com/nerrad567/ent-store/internal/vehicle"
)

// timeFormat is used for every timestamp printed by the CLI.
const timeFormat = "2006-01-02 15:04:05"

// errNotFound is returned when a slot given on the command line has no entry.
var errNotFound = errors.New("no saved entry in slot")

// app carries the open store and optional transport into each command.
type app struct {
	store *store.Store
	mqtt  *mqtt.Client
	out   io.Writer
}

// entryEditor is the part of every family repository that addresses an
// entry by slot alone.
type entryEditor interface {
	Delete(ctx context.Context, slot snapshot.Slot) error
	DeleteChildren(ctx context.Context, slot snapshot.Slot) error
	Rename(ctx context.Context, name string, slot snapshot.Slot) error
}

func dispatch(ctx context.Context, a *app, args []string) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "status":
		return a.status(ctx)
	case "migrate":
		return a.migrate(ctx, rest)
	case "vehicles":
		return a.vehicles(ctx, rest)
	case "skins":
		return a.skins(ctx, rest)
	case "propsets":
		return a.propSets(ctx, rest)
	case "rename":
		return a.rename(ctx, rest)
	case "delete":
		return a.delete(ctx, rest)
	case "clear":
		return a.clear(ctx, rest)
	case "settings":
		return a.settings(ctx, rest)
	case "flags":
		return a.flags(ctx, rest)
	case "history":
		return a.history(ctx, rest)
	case "watch":
		return a.watch(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

func (a *app) heading(format string, args ...any) {
	color.New(color.FgCyan, color.Bold).Fprintf(a.out, format+"\n", args...)
}

func (a *app) success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(a.out, format+"\n", args...)
}

func (a *app) editor(family string) (entryEditor, error) {
	switch family {
	case vehicle.Family.Name, "vehicles":
		return a.store.Vehicles, nil
	case skin.Family.Name, "skins":
		return a.store.Skins, nil
	case propset.Family.Name, "propsets":
		return a.store.PropSets, nil
	default:
		return nil, fmt.Errorf("%w: unknown family %q", errUsage, family)
	}
}

// optionalSlot parses the single optional slot argument of the list commands.
func optionalSlot(args []string) (snapshot.Slot, error) {
	switch len(args) {
	case 0:
		return snapshot.AllEntries, nil
	case 1:
		return snapshot.ParseSlot(args[0])
	default:
		return 0, fmt.Errorf("%w: expected at most one slot", errUsage)
	}
}

func (a *app) status(ctx context.Context) error {
	st, err := a.store.Status(ctx)
	if err != nil {
		return err
	}

	a.heading("Store")
	w := a.table()
	fmt.Fprintf(w, "Path:\t%s\n", st.Path)
	fmt.Fprintf(w, "Driver:\t%s\n", st.Driver)
	fmt.Fprintf(w, "Schema version:\t%d (latest %d)\n", st.SchemaVersion, st.LatestVersion)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out)
	a.heading("Migrations")
	w = a.table()
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, m := range st.Applied {
		fmt.Fprintf(w, "%04d\t%s\t%s\n", m.Version, m.Name, m.AppliedAt.Local().Format(timeFormat))
	}
	return w.Flush()
}

func (a *app) migrate(ctx context.Context, args []string) error {
	if len(args) == 1 && args[0] == "down" {
		v, err := a.store.MigrateDown(ctx)
		if err != nil {
			return err
		}
		a.success("Reverted one migration, schema version is now %d", v)
		return nil
	}
	if len(args) != 0 {
		return fmt.Errorf("%w: migrate takes no arguments except \"down\"", errUsage)
	}

	a.success("Applied %d migration(s)", a.store.MigrationsApplied())
	return nil
}

func (a *app) vehicles(ctx context.Context, args []string) error {
	slot, err := optionalSlot(args)
	if err != nil {
		return err
	}

	list, err := a.store.Vehicles.List(ctx, slot)
	if err != nil {
		return err
	}
	if slot.IsSet() {
		if len(list) == 0 {
			return fmt.Errorf("%w %s", errNotFound, slot)
		}
		v := &list[0]
		if err := a.store.Vehicles.Populate(ctx, v); err != nil {
			return err
		}
		return a.printVehicle(v)
	}

	w := a.table()
	fmt.Fprintln(w, "SLOT\tNAME\tMODEL\tPLATE\tCREATED")
	for _, v := range list {
		fmt.Fprintf(w, "%s\t%s\t0x%08X\t%s\t%s\n",
			v.Slot, v.SaveName, v.Model, v.PlateText, v.CreatedAt.Local().Format(timeFormat))
	}
	return w.Flush()
}

func (a *app) printVehicle(v *vehicle.Vehicle) error {
	a.heading("Vehicle %s: %s", v.Slot, v.SaveName)
	w := a.table()
	fmt.Fprintf(w, "Model:\t0x%08X\n", v.Model)
	fmt.Fprintf(w, "Colours:\tprimary %d, secondary %d, pearl %d, wheel %d\n",
		v.ColourPrimary, v.ColourSecondary, v.ColourExtraPearl, v.ColourExtraWheel)
	fmt.Fprintf(w, "Plate:\t%q (type %d)\n", v.PlateText, v.PlateType)
	fmt.Fprintf(w, "Wheels:\ttype %d, tint %d, livery %d\n", v.WheelType, v.WindowTint, v.Livery)
	fmt.Fprintf(w, "Created:\t%s\n", v.CreatedAt.Local().Format(timeFormat))
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out)
	a.heading("Extras (%d)", len(v.Extras))
	w = a.table()
	fmt.Fprintln(w, "EXTRA\tSTATE")
	for _, e := range v.Extras {
		fmt.Fprintf(w, "%d\t%d\n", e.ExtraID, e.State)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out)
	a.heading("Mods (%d)", len(v.Mods))
	w = a.table()
	fmt.Fprintln(w, "MOD\tSTATE\tTOGGLE")
	for _, m := range v.Mods {
		fmt.Fprintf(w, "%d\t%d\t%t\n", m.ModID, m.State, m.IsToggle)
	}
	return w.Flush()
}

func (a *app) skins(ctx context.Context, args []string) error {
	slot, err := optionalSlot(args)
	if err != nil {
		return err
	}

	list, err := a.store.Skins.List(ctx, slot)
	if err != nil {
		return err
	}
	if slot.IsSet() {
		if len(list) == 0 {
			return fmt.Errorf("%w %s", errNotFound, slot)
		}
		sk := &list[0]
		if err := a.store.Skins.Populate(ctx, sk); err != nil {
			return err
		}
		return a.printSkin(sk)
	}

	w := a.table()
	fmt.Fprintln(w, "SLOT\tNAME\tMODEL\tCREATED")
	for _, sk := range list {
		fmt.Fprintf(w, "%s\t%s\t0x%08X\t%s\n",
			sk.Slot, sk.SaveName, sk.Model, sk.CreatedAt.Local().Format(timeFormat))
	}
	return w.Flush()
}

func (a *app) printSkin(sk *skin.Skin) error {
	a.heading("Skin %s: %s (model 0x%08X)", sk.Slot, sk.SaveName, sk.Model)

	a.heading("Components (%d)", len(sk.Components))
	w := a.table()
	fmt.Fprintln(w, "SLOT\tDRAWABLE\tTEXTURE")
	for _, c := range sk.Components {
		fmt.Fprintf(w, "%d\t%d\t%d\n", c.SlotID, c.Drawable, c.Texture)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out)
	a.heading("Props (%d)", len(sk.Props))
	w = a.table()
	fmt.Fprintln(w, "PROP\tDRAWABLE\tTEXTURE")
	for _, p := range sk.Props {
		fmt.Fprintf(w, "%d\t%d\t%d\n", p.PropID, p.Drawable, p.Texture)
	}
	return w.Flush()
}

func (a *app) propSets(ctx context.Context, args []string) error {
	slot, err := optionalSlot(args)
	if err != nil {
		return err
	}

	list, err := a.store.PropSets.List(ctx, slot)
	if err != nil {
		return err
	}
	if slot.IsSet() {
		if len(list) == 0 {
			return fmt.Errorf("%w %s", errNotFound, slot)
		}
		set := &list[0]
		if err := a.store.PropSets.Populate(ctx, set); err != nil {
			return err
		}
		return a.printPropSet(set)
	}

	w := a.table()
	fmt.Fprintln(w, "SLOT\tNAME\tSIZE\tCREATED")
	for _, set := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			set.Slot, set.SaveName, set.Size, set.CreatedAt.Local().Format(timeFormat))
	}
	return w.Flush()
}

func (a *app) printPropSet(set *propset.PropSet) error {
	a.heading("Prop set %s: %s (%d instances)", set.Slot, set.SaveName, set.Len())
	w := a.table()
	fmt.Fprintln(w, "MODEL\tTITLE\tPOSITION\tROTATION\tFLAGS")
	for _, p := range set.Items {
		fmt.Fprintf(w, "0x%08X\t%s\t%.2f, %.2f, %.2f\t%.1f, %.1f, %.1f\t%s\n",
			p.Model, p.Title,
			p.Position.X, p.Position.Y, p.Position.Z,
			p.Rotation.Pitch, p.Rotation.Roll, p.Rotation.Yaw,
			propFlags(p))
	}
	return w.Flush()
}

func propFlags(p propset.PropInstance) string {
	flags := ""
	add := func(on bool, name string) {
		if !on {
			return
		}
		if flags != "" {
			flags += ","
		}
		flags += name
	}
	add(p.Immovable, "frozen")
	add(p.Invincible, "invincible")
	add(p.HasGravity, "gravity")
	if flags == "" {
		return "-"
	}
	return flags
}

// slotArg parses the family and slot arguments shared by rename, delete and clear.
func (a *app) slotArg(args []string) (entryEditor, snapshot.Slot, error) {
	ed, err := a.editor(args[0])
	if err != nil {
		return nil, 0, err
	}
	slot, err := snapshot.ParseSlot(args[1])
	if err != nil {
		return nil, 0, err
	}
	if err := snapshot.RequireSet(slot); err != nil {
		return nil, 0, err
	}
	return ed, slot, nil
}

func (a *app) rename(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: rename <family> <slot> <name>", errUsage)
	}
	ed, slot, err := a.slotArg(args)
	if err != nil {
		return err
	}
	if err := ed.Rename(ctx, args[2], slot); err != nil {
		return err
	}
	a.success("Renamed %s %s to %q", args[0], slot, args[2])
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: delete <family> <slot>", errUsage)
	}
	ed, slot, err := a.slotArg(args)
	if err != nil {
		return err
	}
	if err := ed.Delete(ctx, slot); err != nil {
		return err
	}
	a.success("Deleted %s %s", args[0], slot)
	return nil
}

func (a *app) clear(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: clear <family> <slot>", errUsage)
	}
	ed, slot, err := a.slotArg(args)
	if err != nil {
		return err
	}
	if err := ed.DeleteChildren(ctx, slot); err != nil {
		return err
	}
	a.success("Cleared children of %s %s", args[0], slot)
	return nil
}

func (a *app) settings(ctx context.Context, args []string) error {
	if len(args) > 0 {
		if len(args) != 3 || args[0] != "set" {
			return fmt.Errorf("%w: settings set <name> <value>", errUsage)
		}
		err := a.store.KV.StoreSettingPairs(ctx, []kvstore.Setting{{Name: args[1], Value: args[2]}})
		if err != nil {
			return err
		}
		a.success("Stored setting %s", args[1])
		return nil
	}

	settings, err := a.store.KV.LoadSettingPairs(ctx)
	if err != nil {
		return err
	}
	w := a.table()
	fmt.Fprintln(w, "NAME\tVALUE")
	for _, s := range settings {
		fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Value)
	}
	return w.Flush()
}

func (a *app) flags(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: flags get <name>... | flags set <name> <true|false>", errUsage)
	}

	switch args[0] {
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("%w: flags set <name> <true|false>", errUsage)
		}
		enabled, err := strconv.ParseBool(args[2])
		if err != nil {
			return fmt.Errorf("%w: flag value %q is not a boolean", errUsage, args[2])
		}
		err = a.store.KV.StoreFeatureEnabledPairs(ctx, []kvstore.FlagBinding{{Name: args[1], Enabled: &enabled}})
		if err != nil {
			return err
		}
		a.success("Stored flag %s=%t", args[1], enabled)
		return nil

	case "get":
		names := args[1:]
		values := make([]bool, len(names))
		found := make([]bool, len(names))
		bindings := make([]kvstore.FlagBinding, len(names))
		for i, name := range names {
			bindings[i] = kvstore.FlagBinding{Name: name, Enabled: &values[i], Updated: &found[i]}
		}
		if err := a.store.KV.LoadFeatureEnabledPairs(ctx, bindings); err != nil {
			return err
		}

		w := a.table()
		fmt.Fprintln(w, "NAME\tENABLED")
		for i, name := range names {
			value := "(unset)"
			if found[i] {
				value = strconv.FormatBool(values[i])
			}
			fmt.Fprintf(w, "%s\t%s\n", name, value)
		}
		return w.Flush()

	default:
		return fmt.Errorf("%w: unknown flags subcommand %q", errUsage, args[0])
	}
}

func (a *app) history(ctx context.Context, args []string) error {
	filter := audit.Filter{Limit: 50}
	switch len(args) {
	case 0:
	case 1:
		filter.EntityType = args[0]
	default:
		return fmt.Errorf("%w: history [family]", errUsage)
	}

	result, err := a.store.Audit.List(ctx, filter)
	if err != nil {
		return err
	}

	a.heading("Recent changes (%d of %d)", len(result.Logs), result.Total)
	w := a.table()
	fmt.Fprintln(w, "WHEN\tFAMILY\tACTION\tSLOT\tSOURCE")
	for _, entry := range result.Logs {
		slot := entry.EntityID
		if slot == "" {
			slot = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.CreatedAt.Local().Format(timeFormat), entry.EntityType, entry.Action, slot, entry.Source)
	}
	return w.Flush()
}

// watch prints every change event published under the configured prefix
// until ctx is cancelled.
func (a *app) watch(ctx context.Context) error {
	if a.mqtt == nil {
		return errors.New("watch requires mqtt.enabled in the configuration")
	}

	topic := a.mqtt.Topics().AllSnapshotChanges()
	received := make(chan events.Event, 16)

	err := a.mqtt.WatchChanges(func(_, _ string, payload []byte) error {
		var ev events.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decoding change event: %w", err)
		}
		select {
		case received <- ev:
		default:
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer a.mqtt.StopWatching() //nolint:errcheck // Shutdown

	a.heading("Watching %s (Ctrl+C to stop)", topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-received:
			fmt.Fprintf(a.out, "%s  %-8s %-16s slot=%d rows=%d %s\n",
				ev.Timestamp.Local().Format(time.TimeOnly), ev.Family, ev.Action, ev.Slot, ev.Rows, ev.Name)
		}
	}
}
