package main

import (
	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/ethpandaops/dupcheck/pkg/credential"
)

// newResolver builds the credential chain: environment, config file,
// OS keychain (prompting and saving on a miss), then a plain prompt.
// Explicit flag values are passed to Resolve and win over all of them.
func newResolver(cfg *config.Config, prompter credential.Prompter) *credential.Resolver {
	configured := map[credential.Domain]credential.Pair{
		credential.Database: {
			Principal: cfg.Database.DBUser,
			Secret:    cfg.Database.DBPassword,
		},
		credential.VersionControl: {
			Principal: cfg.Repository.GitUser,
			Secret:    cfg.Repository.GitPassword,
		},
	}

	services := map[credential.Domain]string{
		credential.Database:       cfg.Database.DBServiceName,
		credential.VersionControl: cfg.Repository.GitServiceName,
	}

	return credential.NewResolver(
		log,
		credential.NewEnvSource(),
		credential.NewStaticSource("config", configured),
		credential.NewStoreSource(log, credential.KeyringStore{}, prompter, services),
		credential.NewPromptSource(prompter),
	)
}
