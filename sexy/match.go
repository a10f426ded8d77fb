package sexy

import "fmt"

// Match reports how actual differs from pattern, or nil if it matches.
//
// Patterns are ordinary data with two extensions: the symbol _ matches any
// single datum, and ... as the last item of a list or array matches any
// remaining items. Numbers compare by value, so 1 matches 1.0.
func Match(pattern, actual *Node) error {
	return match(pattern, actual, "root")
}

func match(pattern, actual *Node, path string) error {
	if pattern.Type == NodeSymbol && pattern.Text == "_" {
		return nil
	}
	if pattern.Type != actual.Type {
		return fmt.Errorf("at %s: expected %s %s, got %s %s", path, pattern.Type, pattern, actual.Type, actual)
	}

	switch pattern.Type {
	case NodeSymbol, NodeString:
		if pattern.Text != actual.Text {
			return fmt.Errorf("at %s: expected %s, got %s", path, pattern, actual)
		}
	case NodeNumber:
		want, err := pattern.Float()
		if err != nil {
			return fmt.Errorf("at %s: bad number in pattern: %w", path, err)
		}
		got, err := actual.Float()
		if err != nil {
			return fmt.Errorf("at %s: %w", path, err)
		}
		if want != got {
			return fmt.Errorf("at %s: expected %s, got %s", path, pattern, actual)
		}
	case NodeList, NodeArray:
		return matchItems(pattern, actual, path)
	}
	return nil
}

func matchItems(pattern, actual *Node, path string) error {
	items := pattern.Items
	open := len(items) > 0 && items[len(items)-1].Type == NodeEllipsis
	if open {
		items = items[:len(items)-1]
	}

	if len(actual.Items) < len(items) || (!open && len(actual.Items) != len(items)) {
		return fmt.Errorf("at %s: expected %d items, got %d in %s", path, len(items), len(actual.Items), actual)
	}

	for i, item := range items {
		if item.Type == NodeEllipsis {
			return fmt.Errorf("at %s: ... is only allowed as the last item", path)
		}
		if err := match(item, actual.Items[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}
