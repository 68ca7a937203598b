package decision

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_RecoversSentinelKind(t *testing.T) {
	kind, ok := KindOf(ErrMissingLayer)
	if !ok || kind != KindMissingLayer {
		t.Fatalf("KindOf(ErrMissingLayer) = (%v, %v), want (%v, true)", kind, ok, KindMissingLayer)
	}
}

func TestKindOf_RecoversWrappedKind(t *testing.T) {
	wrapped := fmt.Errorf("enforce: %w", ErrTimeout)
	kind, ok := KindOf(wrapped)
	if !ok || kind != KindTimeout {
		t.Fatalf("KindOf(wrapped) = (%v, %v), want (%v, true)", kind, ok, KindTimeout)
	}
}

func TestKindOf_UnrelatedErrorReturnsFalse(t *testing.T) {
	_, ok := KindOf(errors.New("boom"))
	if ok {
		t.Fatal("KindOf(unrelated) = true, want false")
	}
}

func TestErrorsIs_StillMatchesSentinels(t *testing.T) {
	err := error(ErrEmbeddingUnavailable)
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatal("errors.Is should match identical sentinel")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatal("errors.Is should not match a different sentinel")
	}
}
