// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"

	gerrors "toolgate/pkg/errors"
)

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address   string
	Token     string
	KVVersion int // 1 或 2，默认 2
}

// vaultStore key 形如 "<mount>/<path>#<field>"，如 "secret/toolgate/policy#token"；field 缺省为 "value"
type vaultStore struct {
	client  *vault.Client
	version int
}

// NewVaultStore 创建 Vault secret store；Token 为空时沿用 VAULT_TOKEN
func NewVaultStore(cfg VaultConfig) (Store, error) {
	vc := vault.DefaultConfig()
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	version := cfg.KVVersion
	if version != 1 {
		version = 2
	}
	return &vaultStore{client: client, version: version}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	ref, field, _ := strings.Cut(key, "#")
	if field == "" {
		field = "value"
	}
	mount, path, ok := strings.Cut(ref, "/")
	if !ok || mount == "" || path == "" {
		return "", fmt.Errorf("vault ref %q: want <mount>/<path>#<field>", key)
	}

	var (
		secret *vault.KVSecret
		err    error
	)
	if v.version == 1 {
		secret, err = v.client.KVv1(mount).Get(ctx, path)
	} else {
		secret, err = v.client.KVv2(mount).Get(ctx, path)
	}
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", fmt.Errorf("vault %s: %w", ref, gerrors.ErrNotFound)
		}
		return "", fmt.Errorf("read vault %s: %w", ref, err)
	}
	if val, ok := secret.Data[field].(string); ok {
		return val, nil
	}
	return "", fmt.Errorf("vault %s field %q: %w", ref, field, gerrors.ErrNotFound)
}
