package smallestsubset_selector

import (
	"fmt"
	"sort"

	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
)

// maxExhaustiveProofs is the max number of proofs for which every
// combination is evaluated. Larger sets are selected greedily.
const maxExhaustiveProofs = 16

var (
	ErrTargetAmountNotReached = fmt.Errorf(
		"%w: not found enough proofs to cover target amount",
		domain.ErrInsufficientBalance,
	)
)

type selector struct{}

func NewSmallestSubsetProofSelector() ports.ProofSelector {
	return &selector{}
}

// SelectProofs returns the smallest subset of proofs covering the target
// amount plus the input fee of the subset itself.
func (s *selector) SelectProofs(
	proofs domain.Proofs, targetAmount uint64,
	feeFn func(domain.Proofs) uint64,
) (domain.Proofs, uint64, error) {
	if targetAmount == 0 {
		return nil, 0, domain.ErrInvalidAmount
	}
	if feeFn == nil {
		feeFn = func(domain.Proofs) uint64 { return 0 }
	}

	sorted := make(domain.Proofs, len(proofs))
	copy(sorted, proofs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})

	// Every added input can raise the fee, so the target is bumped by the fee
	// of the previous selection until the selection covers its own fee.
	target := targetAmount
	for i := 0; i <= len(sorted); i++ {
		selected := selectProofs(target, sorted)
		if len(selected) <= 0 {
			break
		}
		total := selected.Amount()
		required := targetAmount + feeFn(selected)
		if total >= required {
			return selected, total - required, nil
		}
		target = required
	}
	return nil, 0, ErrTargetAmountNotReached
}

// selectProofs returns the proofs that are going to be selected. The goal of
// this strategy is to select as less proofs as possible covering the target
// amount.
func selectProofs(targetAmount uint64, proofs domain.Proofs) domain.Proofs {
	if proofs.Amount() < targetAmount {
		return nil
	}

	values := make([]uint64, 0, len(proofs))
	for _, p := range proofs {
		values = append(values, p.Amount)
	}

	var list []uint64
	if len(values) <= maxExhaustiveProofs {
		list = getBestCombination(values, targetAmount)
	} else {
		list = getGreedyCombination(values, targetAmount)
	}

	//since list variable contains values,
	//indexes holding those values needs to be calculated
	indexes := findIndexes(list, values)

	selected := make(domain.Proofs, 0, len(indexes))
	for _, i := range indexes {
		selected = append(selected, proofs[i])
	}
	return selected
}

func findIndexes(list []uint64, values []uint64) []int {
	var indexes []int
loop:
	for _, v := range list {
		for i, v1 := range values {
			if v == v1 {
				if isIndexOccupied(i, indexes) {
					continue
				} else {
					indexes = append(indexes, i)
					continue loop
				}
			}
		}
	}
	return indexes
}

func isIndexOccupied(i int, list []int) bool {
	for _, v := range list {
		if v == i {
			return true
		}
	}
	return false
}

// getBestCombination attempts to select as less items as possible
// covering the given target amount.
// The strategy here is to try finding exactly 1 proof covering the given
// target amount or, otherwise, progressively increase the number of proofs
// until finding a combination that satisfies the criteria.
// If a combination exceeds the target amount, it is returned straightaway if
// its total amount is lower than 10 times the target one.
// Otherwise, if no combination satisfies this last criteria, the very first
// one found is returned.
func getBestCombination(items []uint64, target uint64) []uint64 {
	combinations := [][]uint64{}
	for i := 1; i < len(items)+1; i++ {
		combinations = append(combinations, getCombination(items, i, 0, nil)...)
		for j := 0; j < len(combinations); j++ {
			total := sum(combinations[j])
			if total < target {
				continue
			}
			if total <= target*10 {
				return combinations[j]
			}
		}
	}

	for _, combo := range combinations {
		if totalAmount := sum(combo); totalAmount >= target {
			return combo
		}
	}

	return []uint64{}
}

// getGreedyCombination picks items, sorted in descending order, from the
// largest down, skipping those that would overshoot the target while a
// smaller one can still close the gap.
func getGreedyCombination(items []uint64, target uint64) []uint64 {
	combo := make([]uint64, 0)
	var total uint64
	for i, v := range items {
		if total >= target {
			break
		}
		missing := target - total
		if v > missing && sum(items[i+1:]) >= missing {
			continue
		}
		combo = append(combo, v)
		total += v
	}
	if total < target {
		return []uint64{}
	}
	return combo
}

// getCombination returns all combinations of size elements from the src slice.
func getCombination(
	src []uint64, size int, offset int, combination []uint64,
) [][]uint64 {
	result := [][]uint64{}
	if size == 0 {
		temp := make([]uint64, len(combination))
		copy(temp, combination)
		return append(result, temp)
	}
	for i := offset; i <= len(src)-size; i++ {
		combination = append(combination, src[i])
		temp := getCombination(src, size-1, i+1, combination)
		result = append(result, temp...)
		combination = combination[:len(combination)-1]
	}
	return result
}

func sum(items []uint64) uint64 {
	var total uint64
	for _, v := range items {
		total += v
	}
	return total
}
