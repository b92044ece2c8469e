package gate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genHistory produces call histories drawn from the full catalog.
func genHistory() gopter.Gen {
	catalog := fullCatalog()
	return gen.SliceOf(gen.IntRange(0, len(catalog)-1)).Map(func(idx []int) []CallRecord {
		out := make([]CallRecord, len(idx))
		for i, n := range idx {
			out[i] = CallRecord{Name: catalog[n]}
		}
		return out
	})
}

func genToolName() gopter.Gen {
	catalog := fullCatalog()
	return gen.IntRange(0, len(catalog)-1).Map(func(i int) string {
		return catalog[i]
	})
}

func navigated(history []CallRecord) bool {
	for _, rec := range history {
		if contains(DefaultTable()[CategoryNavigation], rec.Name) {
			return true
		}
	}
	return false
}

func screenshots(history []CallRecord) int {
	n := 0
	for _, rec := range history {
		if rec.Name == DefaultScreenshotTool {
			n++
		}
	}
	return n
}

func TestGateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	g := Default()
	catalog := fullCatalog()

	properties.Property("safe and navigation are always exposed", prop.ForAll(
		func(history []CallRecord) bool {
			got := g.Enabled(catalog, history)
			for _, name := range namesOf(CategorySafe, CategoryNavigation) {
				if !contains(got, name) {
					return false
				}
			}
			return true
		},
		genHistory(),
	))

	properties.Property("navigation unlocks interaction except a rate-limited screenshot", prop.ForAll(
		func(history []CallRecord) bool {
			if !navigated(history) {
				return true
			}
			got := g.Enabled(catalog, history)
			for _, name := range DefaultTable()[CategoryInteraction] {
				if name == DefaultScreenshotTool {
					continue
				}
				if !contains(got, name) {
					return false
				}
			}
			return true
		},
		genHistory(),
	))

	properties.Property("five screenshots hide the screenshot tool", prop.ForAll(
		func(history []CallRecord) bool {
			if screenshots(history) < DefaultScreenshotLimit {
				return true
			}
			return !contains(g.Enabled(catalog, history), DefaultScreenshotTool)
		},
		genHistory(),
	))

	properties.Property("exposed tools are a subset of the catalog", prop.ForAll(
		func(history []CallRecord) bool {
			for _, name := range g.Enabled(catalog, history) {
				if !contains(catalog, name) || name == "unlisted_tool" {
					return false
				}
			}
			return true
		},
		genHistory(),
	))

	properties.Property("gating is deterministic", prop.ForAll(
		func(history []CallRecord) bool {
			return equal(g.Enabled(catalog, history), g.Enabled(catalog, history))
		},
		genHistory(),
	))

	properties.Property("unlocks are monotonic apart from the screenshot limit", prop.ForAll(
		func(history []CallRecord, next string) bool {
			before := g.Enabled(catalog, history)
			after := g.Enabled(catalog, append(append([]CallRecord(nil), history...), CallRecord{Name: next}))
			for _, name := range before {
				if name == DefaultScreenshotTool {
					continue
				}
				if !contains(after, name) {
					return false
				}
			}
			return true
		},
		genHistory(),
		genToolName(),
	))

	properties.TestingRun(t)
}
