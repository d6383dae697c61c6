package redirector

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	envEnvironment    = "PANTHEON_ENVIRONMENT"
	envInfrastructure = "PANTHEON_INFRASTRUCTURE_ENVIRONMENT"
	envSiteName       = "PANTHEON_SITE_NAME"
	envFileMount      = "FILEMOUNT"

	domainFileName = "pantheon_domains.json"
)

var ErrMissingIdentity = errors.New("platform identity is incomplete")

// Platform is the identity the hosting platform injects into the process
// environment.
type Platform struct {
	Environment               string
	InfrastructureEnvironment string
	SiteName                  string
	FileMount                 string
}

func PlatformFromEnv(getenv func(string) string) Platform {
	if getenv == nil {
		getenv = os.Getenv
	}
	return Platform{
		Environment:               getenv(envEnvironment),
		InfrastructureEnvironment: getenv(envInfrastructure),
		SiteName:                  getenv(envSiteName),
		FileMount:                 getenv(envFileMount),
	}
}

// OnPlatform reports whether the process runs under the hosting platform.
func (p Platform) OnPlatform() bool {
	return p.Environment != "" && p.InfrastructureEnvironment != ""
}

func (p Platform) Validate() error {
	switch {
	case p.Environment == "":
		return errors.Wrap(ErrMissingIdentity, envEnvironment+" is not set")
	case p.SiteName == "":
		return errors.Wrap(ErrMissingIdentity, envSiteName+" is not set")
	case p.FileMount == "":
		return errors.Wrap(ErrMissingIdentity, envFileMount+" is not set")
	}
	return nil
}

// EnvironmentDomain is the platform-generated hostname of the environment,
// e.g. live-mysite.pantheonsite.io.
func (p Platform) EnvironmentDomain(suffix string) string {
	return p.Environment + "-" + p.SiteName + "." + suffix
}

func (p Platform) PrivateDir() string {
	return filepath.Join(p.FileMount, "private")
}

func (p Platform) DomainFile() string {
	return filepath.Join(p.PrivateDir(), domainFileName)
}
