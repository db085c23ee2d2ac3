package decompose

import (
	"github.com/roach88/fedquery/internal/queryir"
)

// placeFilters attaches each filter to the innermost child of jb binding
// all of its variables. Filters no child can take stay on jb. Optional
// children never receive filters from the enclosing group.
func placeFilters(jb *queryir.JoinBlock, filters []*queryir.Filter) {
	for _, f := range filters {
		if !place(jb.Elements, f) {
			jb.Filters = append(jb.Filters, f)
		}
	}
}

func place(elements []queryir.Element, f *queryir.Filter) bool {
	vars := f.Vars()
	if len(vars) == 0 {
		return false
	}
	for _, el := range elements {
		switch e := el.(type) {
		case *queryir.Service:
			if subset(vars, e.Vars()) {
				e.Filters = append(e.Filters, f)
				return true
			}
		case *queryir.JoinBlock:
			if subset(vars, queryir.Vars(e)) {
				if !place(e.Elements, f) {
					e.Filters = append(e.Filters, f)
				}
				return true
			}
		case *queryir.UnionBlock:
			if !boundByEveryBranch(e, vars) {
				continue
			}
			if pushable(e) {
				for _, br := range e.Branches {
					br.(*queryir.Service).Filters = append(br.(*queryir.Service).Filters, f)
				}
			} else {
				e.Filters = append(e.Filters, f)
			}
			return true
		}
	}
	return false
}

func boundByEveryBranch(u *queryir.UnionBlock, vars []string) bool {
	if len(u.Branches) == 0 {
		return false
	}
	for _, br := range u.Branches {
		if !subset(vars, queryir.Vars(br)) {
			return false
		}
	}
	return true
}

// pushable reports whether every branch is a service, so the filter can
// be sent to each endpoint.
func pushable(u *queryir.UnionBlock) bool {
	for _, br := range u.Branches {
		if _, ok := br.(*queryir.Service); !ok {
			return false
		}
	}
	return true
}
