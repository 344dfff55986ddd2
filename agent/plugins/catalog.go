package plugins

import (
	"fmt"
	"slices"
	"strings"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	notesx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/notes"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/plugins/weather"
	promptx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/prompt"
)

// Deps are the collaborators built-in plugins may need. Plugins whose
// dependency is nil are left out of the catalog.
type Deps struct {
	Notes    notesx.Store
	Forecast weather.Forecaster
	Messages *promptx.Catalog
}

type builder func(Deps) (contractx.Handler, bool)

var builtins = []struct {
	name  string
	build builder
}{
	{NameEcho, func(Deps) (contractx.Handler, bool) { return Echo(), true }},
	{NameSum, func(d Deps) (contractx.Handler, bool) { return Sum(d.Messages), true }},
	{NameCalc, func(d Deps) (contractx.Handler, bool) { return Calc(d.Messages), true }},
	{NameNotes, func(d Deps) (contractx.Handler, bool) {
		if d.Notes == nil {
			return nil, false
		}
		return Notes(d.Notes, d.Messages), true
	}},
	{NameList, func(d Deps) (contractx.Handler, bool) {
		if d.Notes == nil {
			return nil, false
		}
		return NotesList(d.Notes, d.Messages), true
	}},
	{weather.Name, func(d Deps) (contractx.Handler, bool) {
		if d.Forecast == nil {
			return nil, false
		}
		return weather.NewHandler(d.Forecast, d.Messages), true
	}},
}

// Names lists every built-in plugin in registration order.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, b.name)
	}
	return out
}

// Catalog builds the enabled built-in plugins in registration order. An empty
// enabled list selects all of them.
func Catalog(deps Deps, enabled ...string) ([]contractx.Handler, error) {
	if deps.Messages == nil {
		deps.Messages = promptx.Default()
	}

	want := make([]string, 0, len(enabled))
	for _, name := range enabled {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !slices.Contains(Names(), name) {
			return nil, fmt.Errorf("%w: unknown plugin %q", contractx.ErrInvalidHandler, name)
		}
		want = append(want, name)
	}

	var out []contractx.Handler
	for _, b := range builtins {
		if len(want) > 0 && !slices.Contains(want, b.name) {
			continue
		}
		h, ok := b.build(deps)
		if !ok {
			if len(want) > 0 {
				return nil, fmt.Errorf("%w: plugin %q is missing a dependency", contractx.ErrInvalidHandler, b.name)
			}
			continue
		}
		out = append(out, h)
	}
	return out, nil
}
