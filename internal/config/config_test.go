/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

// fakeCreds is an in-memory CredentialStore so tests never touch the OS
// keyring.
type fakeCreds struct {
	values map[string]string
	err    error
}

func (f *fakeCreds) Get(service, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[service+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (f *fakeCreds) Set(service, key, value string) error {
	if f.err != nil {
		return f.err
	}
	f.values[service+"/"+key] = value
	return nil
}

func (f *fakeCreds) Delete(service, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.values, service+"/"+key)
	return nil
}

func withFakeCreds(t *testing.T) *fakeCreds {
	t.Helper()
	f := &fakeCreds{values: map[string]string{}}
	prev := creds
	creds = f
	t.Cleanup(func() { creds = prev })
	return f
}

// isolate points the user config dir at a temp location so Load and Save
// never see a real config file.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Backend.Driver != "postgres" {
		t.Fatalf("default driver = %q", cfg.Backend.Driver)
	}
	if cfg.Library.User != "local" {
		t.Fatalf("default user = %q", cfg.Library.User)
	}
	if cfg.General.TelemetryOptIn {
		t.Fatalf("telemetry must default to off")
	}
}

func TestLoadAbsentFileYieldsDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.Driver != "postgres" {
		t.Fatalf("defaults not applied: %+v", cfg.Backend)
	}
}

func TestLoadMalformedFileIsFatal(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bookvault", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("backend: [not a mapping"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatalf("malformed config accepted")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.Backend.Driver = "sqlite"
	cfg.Backend.DSN = "file:test.db"
	cfg.Library.User = "ann"
	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Backend.Driver != "sqlite" || got.Backend.DSN != "file:test.db" || got.Library.User != "ann" {
		t.Fatalf("round trip: %+v", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendDriver, "memory")
	t.Setenv(EnvUser, "override-user")
	t.Setenv(EnvTelemetryOptIn, "yes")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.Driver != "memory" {
		t.Fatalf("driver override missed: %q", cfg.Backend.Driver)
	}
	if cfg.Library.User != "override-user" {
		t.Fatalf("user override missed: %q", cfg.Library.User)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("opt-in override missed")
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		if !parseBool(v) {
			t.Errorf("parseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "no", "off", "maybe"} {
		if parseBool(v) {
			t.Errorf("parseBool(%q) = true", v)
		}
	}
}

func TestDBPasswordEnvWins(t *testing.T) {
	f := withFakeCreds(t)
	f.values[keyringService+"/"+keyringDBKey] = "from-keyring"
	t.Setenv(EnvDBPassword, "from-env")
	pw, err := DBPassword()
	if err != nil || pw != "from-env" {
		t.Fatalf("DBPassword = %q, %v", pw, err)
	}
}

func TestDBPasswordKeyringFallback(t *testing.T) {
	f := withFakeCreds(t)
	t.Setenv(EnvDBPassword, "")
	pw, err := DBPassword()
	if err != nil || pw != "" {
		t.Fatalf("missing credential should read empty: %q, %v", pw, err)
	}
	if err := SetDBPassword("secret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	pw, err = DBPassword()
	if err != nil || pw != "secret" {
		t.Fatalf("DBPassword = %q, %v", pw, err)
	}
	if err := DeleteDBPassword(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.values) != 0 {
		t.Fatalf("credential not removed: %v", f.values)
	}
}

func TestResolveDSN(t *testing.T) {
	withFakeCreds(t)
	t.Setenv(EnvDBPassword, "s3cret")
	dsn, err := ResolveDSN(BackendConfig{DSN: "postgres://u:${password}@db/lib"})
	if err != nil || dsn != "postgres://u:s3cret@db/lib" {
		t.Fatalf("ResolveDSN = %q, %v", dsn, err)
	}
	plain, err := ResolveDSN(BackendConfig{DSN: "file:library.db"})
	if err != nil || plain != "file:library.db" {
		t.Fatalf("plain DSN changed: %q, %v", plain, err)
	}
	keyringDown := &fakeCreds{err: errors.New("dbus unavailable")}
	prev := creds
	creds = keyringDown
	t.Cleanup(func() { creds = prev })
	t.Setenv(EnvDBPassword, "")
	if _, err := ResolveDSN(BackendConfig{DSN: "x${password}y"}); err == nil {
		t.Fatalf("keyring failure should surface")
	}
}
