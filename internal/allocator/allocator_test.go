package allocator

import (
	"errors"
	"math"
	"testing"

	"sor-backtest/internal/venue"
)

func mustAllocator(t *testing.T, w Weights, opts ...Option) *Allocator {
	t.Helper()
	a, err := New(w, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return a
}

func defaultWeights() Weights {
	return Weights{LambdaOver: 0.6, LambdaUnder: 0.5, ThetaQueue: 0.3}
}

func TestAllocateSingleVenueFullCapacity(t *testing.T) {
	venues := []venue.Venue{
		{ID: "A", Ask: 10.00, AskSize: 500, Fee: 0.003, Rebate: 0.002},
	}

	a := mustAllocator(t, defaultWeights())
	split, cost, err := a.Allocate(100, venues)
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	if len(split) != 1 || split[0] != 100 {
		t.Fatalf("expected split [100], got %v", split)
	}
	want := 100 * (10.00 + 0.003)
	if math.Abs(cost-want) > 1e-9 {
		t.Errorf("expected cost %.4f, got %.4f", want, cost)
	}
}

func TestAllocateStepStarvation(t *testing.T) {
	// 场所A更便宜，但挂单量 40 低于 100 股步长，只能被分到 0。
	venues := []venue.Venue{
		{ID: "A", Ask: 9.00, AskSize: 40, Fee: 0.003, Rebate: 0.002},
		{ID: "B", Ask: 10.00, AskSize: 500, Fee: 0.003, Rebate: 0.002},
	}

	a := mustAllocator(t, defaultWeights())
	split, cost, err := a.Allocate(100, venues)
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	if len(split) != 2 || split[0] != 0 || split[1] != 100 {
		t.Fatalf("expected split [0 100], got %v", split)
	}
	want := 100 * (10.00 + 0.003)
	if math.Abs(cost-want) > 1e-9 {
		t.Errorf("expected cost %.4f, got %.4f", want, cost)
	}
}

func TestAllocateInfeasible(t *testing.T) {
	venues := []venue.Venue{
		{ID: "A", Ask: 9.00, AskSize: 50, Fee: 0.003, Rebate: 0.002},
	}

	a := mustAllocator(t, defaultWeights())
	split, cost, err := a.Allocate(100, venues)
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	if len(split) != 0 {
		t.Errorf("expected empty split, got %v", split)
	}
	if !math.IsInf(cost, 1) {
		t.Errorf("expected +Inf cost, got %f", cost)
	}
}

func TestAllocateSumAndCapacityInvariants(t *testing.T) {
	venues := []venue.Venue{
		{ID: "A", Ask: 10.00, AskSize: 300, Fee: 0.003, Rebate: 0.002},
		{ID: "B", Ask: 10.02, AskSize: 250, Fee: 0.003, Rebate: 0.002},
		{ID: "C", Ask: 9.98, AskSize: 400, Fee: 0.003, Rebate: 0.002},
	}
	orderSize := 500

	a := mustAllocator(t, defaultWeights())
	split, _, err := a.Allocate(orderSize, venues)
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	if len(split) != len(venues) {
		t.Fatalf("expected split length %d, got %d", len(venues), len(split))
	}

	total := 0
	for i, q := range split {
		total += q
		if q < 0 || q > venues[i].AskSize {
			t.Errorf("split[%d]=%d violates capacity 0..%d", i, q, venues[i].AskSize)
		}
		if q%DefaultStep != 0 {
			t.Errorf("split[%d]=%d is not a multiple of step %d", i, q, DefaultStep)
		}
	}
	if total != orderSize {
		t.Errorf("expected split sum %d, got %d", orderSize, total)
	}
}

func TestAllocatePicksCheapestFeasibleSplit(t *testing.T) {
	venues := []venue.Venue{
		{ID: "A", Ask: 10.00, AskSize: 500, Fee: 0.003, Rebate: 0.002},
		{ID: "B", Ask: 9.00, AskSize: 500, Fee: 0.003, Rebate: 0.002},
	}

	a := mustAllocator(t, defaultWeights())
	split, cost, err := a.Allocate(200, venues)
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	if split[0] != 0 || split[1] != 200 {
		t.Fatalf("expected everything routed to the cheaper venue, got %v", split)
	}
	want := 200 * (9.00 + 0.003)
	if math.Abs(cost-want) > 1e-9 {
		t.Errorf("expected cost %.4f, got %.4f", want, cost)
	}
}

func TestAllocateWeightInvariance(t *testing.T) {
	// 搜索只评估恰好等于订单量且不超过挂单量的候选，
	// 因此权重不会影响选中的拆分及其现金成本。
	venues := []venue.Venue{
		{ID: "A", Ask: 10.00, AskSize: 300, Fee: 0.003, Rebate: 0.002},
		{ID: "B", Ask: 9.95, AskSize: 200, Fee: 0.003, Rebate: 0.002},
	}

	weightSets := []Weights{
		{},
		{LambdaOver: 1.0, LambdaUnder: 1.1, ThetaQueue: 0.9},
		{LambdaOver: 0.2, LambdaUnder: 0.3, ThetaQueue: 0.1},
	}

	var firstSplit []int
	firstCost := 0.0

	for i, w := range weightSets {
		a := mustAllocator(t, w)
		split, cost, err := a.Allocate(400, venues)
		if err != nil {
			t.Fatalf("Allocate returned error: %v", err)
		}
		if i == 0 {
			firstSplit = split
			firstCost = cost
			continue
		}
		if len(split) != len(firstSplit) {
			t.Fatalf("weight set %d changed split length: %v vs %v", i, split, firstSplit)
		}
		for j := range split {
			if split[j] != firstSplit[j] {
				t.Errorf("weight set %d changed split: %v vs %v", i, split, firstSplit)
				break
			}
		}
		if math.Abs(cost-firstCost) > 1e-9 {
			t.Errorf("weight set %d changed cost: %f vs %f", i, cost, firstCost)
		}
	}
}

func TestAllocateRejectsNonPositiveOrder(t *testing.T) {
	a := mustAllocator(t, defaultWeights())
	if _, _, err := a.Allocate(0, nil); err == nil {
		t.Fatal("expected error for order size 0")
	}
	if _, _, err := a.Allocate(-100, nil); err == nil {
		t.Fatal("expected error for negative order size")
	}
}

func TestAllocateBranchLimit(t *testing.T) {
	venues := []venue.Venue{
		{ID: "A", Ask: 10.00, AskSize: 1000, Fee: 0.003, Rebate: 0.002},
		{ID: "B", Ask: 10.01, AskSize: 1000, Fee: 0.003, Rebate: 0.002},
		{ID: "C", Ask: 10.02, AskSize: 1000, Fee: 0.003, Rebate: 0.002},
	}

	a := mustAllocator(t, defaultWeights(), WithMaxBranches(10))
	_, _, err := a.Allocate(1000, venues)
	if !errors.Is(err, ErrSearchSpaceExceeded) {
		t.Fatalf("expected ErrSearchSpaceExceeded, got %v", err)
	}
}

func TestSetWeights(t *testing.T) {
	a := mustAllocator(t, defaultWeights())

	next := Weights{LambdaOver: 0.8, LambdaUnder: 0.9, ThetaQueue: 0.7}
	if err := a.SetWeights(next); err != nil {
		t.Fatalf("SetWeights returned error: %v", err)
	}
	if a.Weights() != next {
		t.Errorf("expected weights %+v, got %+v", next, a.Weights())
	}

	if err := a.SetWeights(Weights{LambdaOver: -1}); err == nil {
		t.Fatal("expected error for negative weight")
	}
	if a.Weights() != next {
		t.Errorf("failed SetWeights must not change weights, got %+v", a.Weights())
	}
}
