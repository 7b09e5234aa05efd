// Package inventory resolves selector expressions against the known hosts.
package inventory

import (
	"strings"

	"github.com/hbdev/hbd-cli/pkg/collections"
	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/samber/lo"
)

const SelectorAll = "all"

// Resolve turns a selector expression into a target set. Selectors are
// `all`, a comma-separated id list, or a server type tag. The result
// preserves inventory order and never contains duplicate ids.
func Resolve(selector string, servers []entity.ServerDescriptor) ([]entity.ServerDescriptor, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" || selector == SelectorAll {
		return dedupe(servers), nil
	}

	if byType := collections.Filter(func(s entity.ServerDescriptor) bool {
		return string(s.Type) == selector
	}, servers); len(byType) > 0 {
		return dedupe(byType), nil
	}

	ids := lo.Map(strings.Split(selector, ","), func(id string, _ int) string {
		return strings.TrimSpace(id)
	})
	byID := collections.Filter(func(s entity.ServerDescriptor) bool {
		return lo.Contains(ids, s.ID)
	}, servers)
	if len(byID) > 0 {
		return dedupe(byID), nil
	}

	return nil, &breverrors.SelectionError{Selector: selector}
}

// ByType filters to one server type, preserving order.
func ByType(servers []entity.ServerDescriptor, serverType entity.ServerType) []entity.ServerDescriptor {
	return collections.Filter(func(s entity.ServerDescriptor) bool {
		return s.Type == serverType
	}, servers)
}

// ExcludingType filters out one server type, preserving order.
func ExcludingType(servers []entity.ServerDescriptor, serverType entity.ServerType) []entity.ServerDescriptor {
	return collections.Filter(func(s entity.ServerDescriptor) bool {
		return s.Type != serverType
	}, servers)
}

func dedupe(servers []entity.ServerDescriptor) []entity.ServerDescriptor {
	return lo.UniqBy(servers, func(s entity.ServerDescriptor) string { return s.ID })
}
