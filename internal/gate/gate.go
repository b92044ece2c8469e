package gate

import "encoding/json"

// CallRecord is one tool call made during a conversation. Records are
// appended in call order and never modified afterwards.
type CallRecord struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	// Rejected marks a call refused before it reached the server. It is
	// reported but never unlocks anything.
	Rejected bool `json:"rejected,omitempty"`
}

// State is what the gate knows about a conversation. It is derived from
// the call history on every step and never stored.
type State struct {
	Navigated   bool
	TabsListed  bool
	Screenshots int
}

// Gate decides which tools the model may call on the next step.
// It is safe for concurrent use; all methods are pure.
type Gate struct {
	table  Table
	byName map[string]Category
	policy Policy
}

// New creates a gate over the given category table and policy.
func New(table Table, policy Policy) *Gate {
	if policy.ScreenshotTool == "" {
		policy.ScreenshotTool = DefaultScreenshotTool
	}
	if policy.ScreenshotLimit <= 0 {
		policy.ScreenshotLimit = DefaultScreenshotLimit
	}
	t := table.Clone()
	return &Gate{
		table:  t,
		byName: t.index(),
		policy: policy,
	}
}

// Default creates a gate with the default table and policy.
func Default() *Gate {
	return New(DefaultTable(), DefaultPolicy())
}

// Policy returns the gate's thresholds.
func (g *Gate) Policy() Policy {
	return g.policy
}

// CategoryOf returns the category a tool name belongs to.
func (g *Gate) CategoryOf(name string) (Category, bool) {
	c, ok := g.byName[name]
	return c, ok
}

// Derive folds the call history into a State.
func (g *Gate) Derive(history []CallRecord) State {
	var st State
	for _, rec := range history {
		if rec.Rejected {
			continue
		}
		if g.byName[rec.Name] == CategoryNavigation {
			st.Navigated = true
		}
		for _, tab := range g.policy.TabListTools {
			if rec.Name == tab {
				st.TabsListed = true
			}
		}
		if rec.Name == g.policy.ScreenshotTool {
			st.Screenshots++
		}
	}
	return st
}

// Categories returns the categories unlocked for the given history.
//
// Rules:
//  1. safe and navigation are always included
//  2. interaction once any navigation tool has been called
//  3. terminal, database_write, memory, voice, agent_draft always
//  4. destructive once navigation has happened or tabs have been listed
func (g *Gate) Categories(history []CallRecord) []Category {
	return g.categories(g.Derive(history))
}

func (g *Gate) categories(st State) []Category {
	out := []Category{CategorySafe, CategoryNavigation}
	if st.Navigated {
		out = append(out, CategoryInteraction)
	}
	out = append(out, unconditional...)
	if st.Navigated || st.TabsListed {
		out = append(out, CategoryDestructive)
	}
	return out
}

// Enabled returns the subset of available tool names the model may call
// next, in the order they appear in available. Names that belong to no
// unlocked category are dropped, as are category members the catalog
// does not currently provide.
func (g *Gate) Enabled(available []string, history []CallRecord) []string {
	st := g.Derive(history)

	unlocked := make(map[Category]bool, len(AllCategories))
	for _, c := range g.categories(st) {
		unlocked[c] = true
	}
	suppressScreenshot := st.Screenshots >= g.policy.ScreenshotLimit

	out := make([]string, 0, len(available))
	seen := make(map[string]bool, len(available))
	for _, name := range available {
		if seen[name] {
			continue
		}
		c, ok := g.byName[name]
		if !ok || !unlocked[c] {
			continue
		}
		if suppressScreenshot && name == g.policy.ScreenshotTool {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
