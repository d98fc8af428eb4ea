package injection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxItems caps how many context items survive ranking.
const maxItems = 5

// Injector runs all adapters concurrently and turns their output into a
// prompt augmentation.
type Injector struct {
	adapters []Adapter
}

// NewInjector creates an Injector over the given adapters. Adapter order
// determines tie-breaking during ranking.
func NewInjector(adapters ...Adapter) *Injector {
	return &Injector{adapters: adapters}
}

// Gather runs every adapter concurrently and returns their items ranked.
// The first adapter error fails the gather.
func (inj *Injector) Gather(ctx context.Context, prompt, userID string) ([]Item, error) {
	results := make([][]Item, len(inj.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range inj.adapters {
		g.Go(func() error {
			items, err := a.Gather(gctx, prompt, userID)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []Item
	for _, r := range results {
		items = append(items, r...)
	}
	return Rank(items), nil
}

// Rank sorts items by relevance descending and keeps at most maxItems.
// The sort is stable: ties keep adapter emission order.
func Rank(items []Item) []Item {
	ranked := make([]Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})
	if len(ranked) > maxItems {
		ranked = ranked[:maxItems]
	}
	return ranked
}

// Render appends the context block to the prompt. With no items the prompt
// is returned byte-identical.
func Render(prompt string, items []Item) string {
	if len(items) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n**Relevant Context:**\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, strings.ToUpper(item.Kind), item.Content)
	}
	b.WriteString("\n**Please consider this context when responding.**\n")
	return b.String()
}
