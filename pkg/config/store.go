package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wentf9/xdeploy/pkg/crypto"
	"github.com/wentf9/xdeploy/pkg/models"
	"github.com/wentf9/xdeploy/pkg/utils/file"
	"gopkg.in/yaml.v3"
)

// InventoryFile 默认的部署清单文件名
const InventoryFile = "deploy.yaml"

type Store interface {
	Load() (*Inventory, error)
	Save(inv *Inventory) error
}

type defaultStore struct {
	Path string
	Key  []byte // 用于加解密清单中的敏感字段
}

func NewDefaultStore(path string, key []byte) Store {
	return &defaultStore{
		Path: path,
		Key:  key,
	}
}

func (s *defaultStore) Load() (*Inventory, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var inv Inventory
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	inv.applyDefaults()

	if err := s.transform(&inv, false); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *defaultStore) Save(inv *Inventory) error {
	out := *inv
	out.Identities = make(map[string]models.Identity, len(inv.Identities))
	for name, id := range inv.Identities {
		out.Identities[name] = id
	}
	if err := s.transform(&out, true); err != nil {
		return err
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return file.WriteAtomic(s.Path, data, 0600)
}

// transform 加密或解密 Identities 与数据库密码中的敏感字段
func (s *defaultStore) transform(inv *Inventory, encrypt bool) error {
	secret := func(v string) bool {
		if encrypt {
			return v != "" && !crypto.IsEncrypted(v)
		}
		return crypto.IsEncrypted(v)
	}
	hasSecret := secret(inv.DB.Password)
	for _, id := range inv.Identities {
		hasSecret = hasSecret || secret(id.Password) || secret(id.Passphrase)
	}
	if !hasSecret {
		return nil
	}
	if len(s.Key) == 0 {
		if encrypt {
			return errors.New("no key configured for encrypting secrets")
		}
		return fmt.Errorf("%s contains encrypted fields but no key is configured", s.Path)
	}
	c, err := crypto.NewCrypter(s.Key)
	if err != nil {
		return err
	}
	conv := c.Decrypt
	if encrypt {
		conv = c.Encrypt
	}

	fields := func(ptrs ...*string) error {
		for _, p := range ptrs {
			v, err := conv(*p)
			if err != nil {
				return err
			}
			*p = v
		}
		return nil
	}
	if err := fields(&inv.DB.Password); err != nil {
		return fmt.Errorf("db password: %w", err)
	}
	for name, id := range inv.Identities {
		if err := fields(&id.Password, &id.Passphrase); err != nil {
			return fmt.Errorf("identity '%s': %w", name, err)
		}
		inv.Identities[name] = id
	}
	return nil
}
