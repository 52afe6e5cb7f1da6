package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gerrors "toolgate/pkg/errors"
)

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	t.Setenv("TOOLGATE_SECRET_TEST", "from-env")
	t.Setenv("TOOLGATE_SECRET_EMPTY", "")
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("from-file\n"), 0600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}

	r := NewResolver()
	r.Register("mem", StaticStore{"policy": "from-memory"})

	tests := []struct {
		ref         string
		want        string
		notFound    bool
		errContains string
	}{
		{ref: "", want: ""},
		{ref: "env:TOOLGATE_SECRET_TEST", want: "from-env"},
		{ref: "file:" + path, want: "from-file"},
		{ref: "literal:abc", want: "abc"},
		{ref: "literal:", want: ""},
		{ref: "mem:policy", want: "from-memory"},
		{ref: "mem:missing", notFound: true},
		{ref: "env:TOOLGATE_SECRET_UNSET", notFound: true},
		{ref: "env:TOOLGATE_SECRET_EMPTY", notFound: true},
		{ref: "file:" + filepath.Join(t.TempDir(), "absent"), notFound: true},
		{ref: "nope", errContains: "missing scheme"},
		{ref: "vault:secret/x#token", errContains: "unsupported secret provider"},
	}
	for _, tc := range tests {
		t.Run(tc.ref, func(t *testing.T) {
			got, err := r.Resolve(ctx, tc.ref)
			switch {
			case tc.notFound:
				if !errors.Is(err, gerrors.ErrNotFound) {
					t.Fatalf("error = %v, want ErrNotFound", err)
				}
				return
			case tc.errContains != "":
				if err == nil || !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %v, want contains %q", err, tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tc.ref, got, tc.want)
			}
		})
	}
}

func TestVaultStore_BadRef(t *testing.T) {
	s, err := NewVaultStore(VaultConfig{Address: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewVaultStore: %v", err)
	}
	for _, key := range []string{"noslash#token", "/path#f", "mount/#f"} {
		if _, err := s.Get(context.Background(), key); err == nil || !strings.Contains(err.Error(), "want <mount>/<path>") {
			t.Errorf("Get(%q) error = %v", key, err)
		}
	}
}
