/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package config loads and validates the daemon configuration from the
// environment, and provides the live-reloaded ignore list.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/grammars"
	"github.com/janus-directory/janus/internal/link"
	"github.com/sapcc/go-bits/errext"
)

// Config is the daemon configuration. All values come from the environment;
// an optional config file can be layered below with cleanenv.ReadConfig.
type Config struct {
	Realm string `yaml:"realm" env:"JANUS_REALM"`

	InternalURL          string `yaml:"internalURL" env:"JANUS_INTERNAL_LDAP_URL" env-default:"ldap://localhost:390"`
	InternalBaseDN       string `yaml:"internalBaseDN" env:"JANUS_INTERNAL_BASE_DN"`
	InternalBindDN       string `yaml:"internalBindDN" env:"JANUS_INTERNAL_BIND_DN"`
	InternalBindPassword string `yaml:"internalBindPassword" env:"JANUS_INTERNAL_BIND_PASSWORD"`

	ExternalSocketPath string `yaml:"externalSocketPath" env:"JANUS_EXTERNAL_SOCKET_PATH" env-default:"/var/lib/samba/private/ldap_priv/ldapi"`
	ExternalBaseDN     string `yaml:"externalBaseDN" env:"JANUS_EXTERNAL_BASE_DN"`

	IdmapRangeBegin uint32 `yaml:"idmapRangeBegin" env:"JANUS_IDMAP_RANGE_BEGIN" env-default:"100000"`
	IdmapRangeEnd   uint32 `yaml:"idmapRangeEnd" env:"JANUS_IDMAP_RANGE_END" env-default:"200000"`

	AllUsersGroup     string `yaml:"allUsersGroup" env:"JANUS_ALL_USERS_GROUP" env-default:"users"`
	DomainAdminsGroup string `yaml:"domainAdminsGroup" env:"JANUS_DOMAIN_ADMINS_GROUP" env-default:"admins"`

	// IgnoreListPath points at a file with one group name per line. An empty
	// path disables the ignore list.
	IgnoreListPath string `yaml:"ignoreListPath" env:"JANUS_IGNORE_LIST_PATH"`

	ConnectMaxAttempts int           `yaml:"connectMaxAttempts" env:"JANUS_CONNECT_MAX_ATTEMPTS" env-default:"300"`
	ConnectRetryDelay  time.Duration `yaml:"connectRetryDelay" env:"JANUS_CONNECT_RETRY_DELAY" env-default:"500ms"`
}

// FromEnvironment reads the configuration from environment variables and
// validates it.
func FromEnvironment() (Config, error) {
	var cfg Config
	err := cleanenv.ReadEnv(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read configuration: %w", err)
	}

	errs := cfg.Validate()
	if !errs.IsEmpty() {
		messages := make([]string, len(errs))
		for idx, err := range errs {
			messages[idx] = err.Error()
		}
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
	}
	return cfg, nil
}

// Validate checks all grammar-constrained values at once, so that the
// operator sees every mistake in a single pass.
func (cfg Config) Validate() (errs errext.ErrorSet) {
	if !grammars.IsKerberosRealm(cfg.Realm) {
		errs.Addf("JANUS_REALM: %q is not an acceptable Kerberos realm (must match %s)",
			cfg.Realm, grammars.KerberosRealmRegex)
	}
	if !grammars.IsDomainSuffix(cfg.InternalBaseDN) {
		errs.Addf("JANUS_INTERNAL_BASE_DN: %q is not an acceptable base DN (must match %s)",
			cfg.InternalBaseDN, grammars.DomainSuffixRegex)
	}
	if !grammars.IsDomainSuffix(cfg.ExternalBaseDN) {
		errs.Addf("JANUS_EXTERNAL_BASE_DN: %q is not an acceptable base DN (must match %s)",
			cfg.ExternalBaseDN, grammars.DomainSuffixRegex)
	}
	if cfg.IdmapRangeEnd <= cfg.IdmapRangeBegin {
		errs.Addf("JANUS_IDMAP_RANGE_END (%d) must be greater than JANUS_IDMAP_RANGE_BEGIN (%d)",
			cfg.IdmapRangeEnd, cfg.IdmapRangeBegin)
	}
	for _, name := range []string{cfg.AllUsersGroup, cfg.DomainAdminsGroup} {
		if !grammars.IsAccountName(name) {
			errs.Addf("%q is not an acceptable group name (must match %s)",
				name, grammars.AccountNameRegex)
		}
	}
	return
}

// InternalConnectionOptions renders the connection options for the internal
// tree.
func (cfg Config) InternalConnectionOptions() directory.ConnectionOptions {
	return directory.ConnectionOptions{
		URL:          cfg.InternalURL,
		BindDN:       cfg.InternalBindDN,
		BindPassword: cfg.InternalBindPassword,
		MaxAttempts:  cfg.ConnectMaxAttempts,
		RetryDelay:   cfg.ConnectRetryDelay,
	}
}

// ExternalConnectionOptions renders the connection options for the external
// tree.
func (cfg Config) ExternalConnectionOptions() directory.ConnectionOptions {
	return directory.ConnectionOptions{
		SocketPath:  cfg.ExternalSocketPath,
		MaxAttempts: cfg.ConnectMaxAttempts,
		RetryDelay:  cfg.ConnectRetryDelay,
	}
}

// LinkOptions renders the link registry options.
func (cfg Config) LinkOptions() link.Options {
	return link.Options{
		AllUsersGroup:     cfg.AllUsersGroup,
		DomainAdminsGroup: cfg.DomainAdminsGroup,
	}
}
