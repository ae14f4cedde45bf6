package identity

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/fentz26/pageforge/internal/models"
)

func TestGenerateEmbedsBaseName(t *testing.T) {
	g := New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		id := g.Generate("Acme Fitness", i)
		if !strings.HasPrefix(id.DisplayName, "Acme Fitness - ") {
			t.Fatalf("display name %q does not embed base name", id.DisplayName)
		}
		if len(id.DisplayName) <= len("Acme Fitness - ") {
			t.Fatalf("display name %q has no personal name", id.DisplayName)
		}
		if id.Gender != models.GenderFemale && id.Gender != models.GenderMale {
			t.Fatalf("unexpected gender %q", id.Gender)
		}
	}
}

func TestGenerateBlankBaseName(t *testing.T) {
	id := New(rand.NewPCG(3, 4)).Generate("   ", 0)
	if !strings.HasPrefix(id.DisplayName, "Page - ") {
		t.Errorf("expected fallback base, got %q", id.DisplayName)
	}
}

func TestGenerateGenderMatchesPool(t *testing.T) {
	g := New(rand.NewPCG(5, 6))
	inPool := func(name string, pool []string) bool {
		for _, p := range pool {
			if p == name {
				return true
			}
		}
		return false
	}
	for i := 0; i < 100; i++ {
		id := g.Generate("X", i)
		first := strings.Fields(strings.TrimPrefix(id.DisplayName, "X - "))[0]
		switch id.Gender {
		case models.GenderFemale:
			if !inPool(first, femaleNames) {
				t.Errorf("%s tagged female", first)
			}
		case models.GenderMale:
			if !inPool(first, maleNames) {
				t.Errorf("%s tagged male", first)
			}
		}
	}
}

func TestGenerateDistribution(t *testing.T) {
	g := New(rand.NewPCG(7, 8))
	const n = 5000
	female := 0
	for i := 0; i < n; i++ {
		if g.Generate("X", i).Gender == models.GenderFemale {
			female++
		}
	}
	share := float64(female) / n
	if share < 0.65 || share > 0.75 {
		t.Errorf("female share %.2f outside expected range", share)
	}
}

func TestPackageGenerate(t *testing.T) {
	if id := Generate("Shop", 3); id.DisplayName == "" {
		t.Error("empty display name")
	}
}
