package pgvector

import (
	"testing"
)

func TestVectorLiteralRoundTrip(t *testing.T) {
	original := []float32{0.1, -2.5, 3.75}
	encoded := encodeVector(original)
	if !encoded.Valid {
		t.Fatal("expected a valid literal")
	}
	decoded := decodeVector(encoded.String)
	if len(decoded) != len(original) {
		t.Fatalf("len = %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], original[i])
		}
	}
}

func TestVectorLiteralEdgeCases(t *testing.T) {
	if encodeVector(nil).Valid {
		t.Error("empty vector should encode to NULL")
	}
	if decodeVector("") != nil {
		t.Error("empty literal should decode to nil")
	}
	if decodeVector("[]") != nil {
		t.Error("empty brackets should decode to nil")
	}
	if decodeVector("[not,a,number]") != nil {
		t.Error("garbage literal should decode to nil")
	}
}

func TestNullable(t *testing.T) {
	if nullable("").Valid {
		t.Error("empty string should be NULL")
	}
	ns := nullable("x")
	if !ns.Valid || ns.String != "x" {
		t.Errorf("nullable(x) = %+v", ns)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	for _, m := range migrations {
		if m.id == "" || m.upSQL == "" {
			t.Errorf("incomplete migration: %+v", m.id)
		}
	}
}

func TestNewRequiresConnection(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without DSN or DB")
	}
}
