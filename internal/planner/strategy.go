package planner

// bushy pairs operands bottom-up: on every level each operand is joined
// with the first later operand sharing a variable with it, or with the
// next one when none does; an odd operand is carried to the next level.
func bushy(operands []Node) Node {
	level := append([]Node(nil), operands...)
	for len(level) > 1 {
		used := make([]bool, len(level))
		var next []Node
		for i := range level {
			if used[i] {
				continue
			}
			used[i] = true
			partner := -1
			for j := i + 1; j < len(level); j++ {
				if !used[j] && len(intersect(level[i].Vars(), level[j].Vars())) > 0 {
					partner = j
					break
				}
			}
			if partner < 0 {
				for j := i + 1; j < len(level); j++ {
					if !used[j] {
						partner = j
						break
					}
				}
			}
			if partner < 0 {
				next = append(next, level[i])
				continue
			}
			used[partner] = true
			next = append(next, join(level[i], level[partner]))
		}
		level = next
	}
	return level[0]
}

// leftDeep folds operands into ((a ⋈ b) ⋈ c) ⋈ ...
func leftDeep(operands []Node) Node {
	root := operands[0]
	for _, n := range operands[1:] {
		root = join(root, n)
	}
	return root
}

// connectedOrder reorders operands so that each one shares a variable
// with an earlier one whenever some remaining operand does.
func connectedOrder(operands []Node) []Node {
	rest := append([]Node(nil), operands...)
	out := []Node{rest[0]}
	bound := rest[0].Vars()
	rest = rest[1:]
	for len(rest) > 0 {
		pick := 0
		for i, n := range rest {
			if len(intersect(bound, n.Vars())) > 0 {
				pick = i
				break
			}
		}
		out = append(out, rest[pick])
		bound = union(bound, rest[pick].Vars())
		rest = append(rest[:pick], rest[pick+1:]...)
	}
	return out
}
