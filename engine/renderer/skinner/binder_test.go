package skinner

import (
	"errors"
	"sort"
	"testing"

	"github.com/Carmen-Shannon/splat-go/engine/model"
	"github.com/Carmen-Shannon/splat-go/engine/renderer/palette"
)

func weightedCloud(name string, indices [][4]uint16, weights [][4]float32) *model.PointCloud {
	return &model.PointCloud{
		Name:        name,
		Count:       len(indices),
		BoneIndices: indices,
		BoneWeights: weights,
	}
}

func TestBind(t *testing.T) {
	// Twelve mapped bones whose palette range starts at slot 1.
	slotMap := make([]uint32, 12)
	for i := range slotMap {
		slotMap[i] = uint32(1 + i)
	}

	pc := weightedCloud("cloud",
		[][4]uint16{{2, 5, 9, 0}},
		[][4]float32{{0.5, 0.3, 0.2, 0}},
	)

	b, err := Bind(pc, slotMap)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	wantSlots := []float32{3, 6, 10, 1}
	wantWeights := []float32{0.5, 0.3, 0.2, 0}
	for c := 0; c < 4; c++ {
		if b.PaletteSlots[c] != wantSlots[c] {
			t.Errorf("slot[%d] = %v, want %v", c, b.PaletteSlots[c], wantSlots[c])
		}
		if b.Weights[c] != wantWeights[c] {
			t.Errorf("weight[%d] = %v, want %v", c, b.Weights[c], wantWeights[c])
		}
	}
}

func TestBindPreservesWeightMultiset(t *testing.T) {
	slotMap := []uint32{1, 2, 3, 4}
	pc := weightedCloud("cloud",
		[][4]uint16{{3, 1, 0, 2}, {0, 0, 0, 0}},
		[][4]float32{{0.4, 0.1, 0.25, 0.25}, {1, 0, 0, 0}},
	)

	b, err := Bind(pc, slotMap)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	for i := 0; i < pc.Count; i++ {
		got := append([]float32(nil), b.Weights[i*4:i*4+4]...)
		want := append([]float32(nil), pc.BoneWeights[i][:]...)
		sort.Slice(got, func(a, b int) bool { return got[a] < got[b] })
		sort.Slice(want, func(a, b int) bool { return want[a] < want[b] })
		for c := range want {
			if got[c] != want[c] {
				t.Fatalf("point %d: weight multiset %v, want %v", i, got, want)
			}
		}
	}
}

func TestBindUnmappedIndexFallsBackToIdentity(t *testing.T) {
	slotMap := []uint32{7}
	pc := weightedCloud("cloud",
		[][4]uint16{{0, 42, 0, 0}},
		[][4]float32{{0.9, 0.1, 0, 0}},
	)

	b, err := Bind(pc, slotMap)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if b.PaletteSlots[1] != palette.IdentitySlot {
		t.Fatalf("unmapped channel slot = %v, want identity", b.PaletteSlots[1])
	}
	if b.Weights[1] != 0.1 {
		t.Fatalf("unmapped channel weight = %v, want untouched 0.1", b.Weights[1])
	}
}

func TestBindNoWeightData(t *testing.T) {
	pc := &model.PointCloud{Name: "bare", Count: 3}

	if _, err := Bind(pc, []uint32{1}); !errors.Is(err, ErrNoWeightData) {
		t.Fatalf("err = %v, want ErrNoWeightData", err)
	}
	if _, err := BindSingleBone(pc, []uint32{1}); !errors.Is(err, ErrNoWeightData) {
		t.Fatalf("single-bone err = %v, want ErrNoWeightData", err)
	}
}

func TestBindSingleBone(t *testing.T) {
	slotMap := []uint32{1, 2, 3, 4, 5, 6}
	pc := weightedCloud("cloud",
		[][4]uint16{{0, 4, 2, 1}},
		[][4]float32{{0.2, 0.5, 0.2, 0.1}},
	)

	b, err := BindSingleBone(pc, slotMap)
	if err != nil {
		t.Fatalf("BindSingleBone: %v", err)
	}

	// The strongest influence (bone 4, weight 0.5) wins the whole point.
	if b.PaletteSlots[0] != 5 || b.Weights[0] != 1 {
		t.Fatalf("primary channel = (%v, %v), want (5, 1)", b.PaletteSlots[0], b.Weights[0])
	}
	for c := 1; c < 4; c++ {
		if b.PaletteSlots[c] != palette.IdentitySlot || b.Weights[c] != 0 {
			t.Fatalf("channel %d = (%v, %v), want identity with zero weight", c, b.PaletteSlots[c], b.Weights[c])
		}
	}
}

func TestPackPointSkins(t *testing.T) {
	b := &model.SkinBinding{
		PaletteSlots: []float32{3, 6, 10, 1, 2, 1, 1, 1},
		Weights:      []float32{0.5, 0.3, 0.2, 0, 1, 0, 0, 0},
	}

	skins := PackPointSkins(b)
	if len(skins) != 2 {
		t.Fatalf("len = %d, want 2", len(skins))
	}
	if skins[0].Slots != [4]float32{3, 6, 10, 1} {
		t.Errorf("skins[0].Slots = %v", skins[0].Slots)
	}
	if skins[1].Weights != [4]float32{1, 0, 0, 0} {
		t.Errorf("skins[1].Weights = %v", skins[1].Weights)
	}

	if sz := (&GPUPointSkin{}).Size(); sz != 32 {
		t.Errorf("Size = %d, want 32", sz)
	}
	if buf := skins[0].Marshal(); len(buf) != 32 {
		t.Errorf("Marshal length = %d", len(buf))
	}
}
