package gate

import "sort"

// Category is a static grouping of tool names exposed by the automation server.
type Category string

const (
	CategorySafe          Category = "safe"
	CategoryNavigation    Category = "navigation"
	CategoryInteraction   Category = "interaction"
	CategoryTerminal      Category = "terminal"
	CategoryDatabaseWrite Category = "database_write"
	CategoryDestructive   Category = "destructive"
	CategoryMemory        Category = "memory"
	CategoryVoice         Category = "voice"
	CategoryAgentDraft    Category = "agent_draft"
)

// AllCategories lists every category in evaluation order.
var AllCategories = []Category{
	CategorySafe,
	CategoryNavigation,
	CategoryInteraction,
	CategoryTerminal,
	CategoryDatabaseWrite,
	CategoryDestructive,
	CategoryMemory,
	CategoryVoice,
	CategoryAgentDraft,
}

// unconditional categories are exposed on every step.
var unconditional = []Category{
	CategoryTerminal,
	CategoryDatabaseWrite,
	CategoryMemory,
	CategoryVoice,
	CategoryAgentDraft,
}

// Audited reports whether calls to tools in c must be written to the audit log.
func Audited(c Category) bool {
	switch c {
	case CategoryTerminal, CategoryDatabaseWrite, CategoryMemory,
		CategoryVoice, CategoryAgentDraft, CategoryDestructive:
		return true
	}
	return false
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Table maps each category to the tool names it contains.
// A tool name belongs to at most one category.
type Table map[Category][]string

// DefaultTable returns the category table for the i-View Mini tool surface.
func DefaultTable() Table {
	return Table{
		CategorySafe: {
			"get_status",
			"get_page_info",
			"get_page_content",
			"get_page_text",
			"get_current_url",
			"find_elements",
			"get_element_info",
			"get_console_logs",
			"list_tabs",
			"list_sessions",
		},
		CategoryNavigation: {
			"navigate_browser",
			"go_back",
			"go_forward",
			"reload_page",
			"new_tab",
			"switch_tab",
		},
		CategoryInteraction: {
			"click_element",
			"fill_input",
			"type_text",
			"press_key",
			"scroll_page",
			"hover_element",
			"select_option",
			"wait_for_element",
			"take_screenshot",
		},
		CategoryTerminal: {
			"terminal_read",
			"terminal_write",
			"terminal_execute",
			"terminal_list",
		},
		CategoryDatabaseWrite: {
			"save_record",
			"update_record",
			"insert_knowledge",
		},
		CategoryDestructive: {
			"close_tab",
			"close_session",
			"clear_browser_data",
		},
		CategoryMemory: {
			"memory_save",
			"memory_query",
			"memory_list",
		},
		CategoryVoice: {
			"speak_text",
			"set_voice",
		},
		CategoryAgentDraft: {
			"draft_agent",
			"update_agent_draft",
			"list_agent_drafts",
		},
	}
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for c, names := range t {
		out[c] = append([]string(nil), names...)
	}
	return out
}

// index builds the reverse name → category lookup.
// When a name appears under several categories the first one in
// AllCategories order wins.
func (t Table) index() map[string]Category {
	idx := make(map[string]Category)
	for _, c := range AllCategories {
		for _, name := range t[c] {
			if _, ok := idx[name]; !ok {
				idx[name] = c
			}
		}
	}
	return idx
}

// Names returns the sorted tool names of category c.
func (t Table) Names(c Category) []string {
	names := append([]string(nil), t[c]...)
	sort.Strings(names)
	return names
}
