package blobs

import (
	"regexp"
	"slices"
	"strings"

	"github.com/aweris/blobs/internal/remote"
)

const (
	maxKeySize       = 600
	maxStoreNameSize = 64

	// LegacyNamespacePrefix marks store names created before scopes existed.
	// The remainder is used verbatim as the scope.
	LegacyNamespacePrefix = "netlify-internal/legacy-namespace/"

	siteScopePrefix   = "site:"
	deployScopePrefix = "deploy:"
)

// Regions lists the region codes the backend serves.
var Regions = []string{"us-east-1", "us-east-2", "eu-central-1", "ap-southeast-1", "ap-southeast-2"}

var deployIDPattern = regexp.MustCompile(`^\w{1,24}$`)

func validateKey(key string) error {
	switch {
	case key == "":
		return invalid("key", key, "must not be empty")
	case strings.HasPrefix(key, "/") || strings.HasPrefix(key, "%2F"):
		return invalid("key", key, "must not start with a forward slash")
	case len(key) > maxKeySize:
		return invalid("key", "", "must be a sequence of Unicode characters whose UTF-8 encoding is at most 600 bytes long")
	}
	return nil
}

func validateStoreName(name string) error {
	switch {
	case strings.Contains(name, "/") || strings.Contains(name, "%2F"):
		return invalid("store name", name, "must not contain forward slashes")
	case len(name) > maxStoreNameSize:
		return invalid("store name", "", "must be a sequence of Unicode characters whose UTF-8 encoding is at most 64 bytes long")
	}
	return nil
}

func validateDeployID(id string) error {
	if !deployIDPattern.MatchString(id) {
		return invalid("deploy ID", id, "must be 1 to 24 letters, digits or underscores")
	}
	return nil
}

func validateRegion(region string) error {
	if region == remote.RegionAuto || slices.Contains(Regions, region) {
		return nil
	}
	return invalid("region", region, "supported regions are "+strings.Join(Regions, ", "))
}

// siteScope maps a store name to its scope, honouring legacy namespaces.
func siteScope(name string) (string, error) {
	if legacy, ok := strings.CutPrefix(name, LegacyNamespacePrefix); ok {
		if legacy == "" {
			return "", ErrMissingStoreName
		}
		return legacy, nil
	}
	if err := validateStoreName(name); err != nil {
		return "", err
	}
	return siteScopePrefix + name, nil
}

func deployScope(deployID, name string) (string, error) {
	if err := validateDeployID(deployID); err != nil {
		return "", err
	}
	if name == "" {
		return deployScopePrefix + deployID, nil
	}
	if err := validateStoreName(name); err != nil {
		return "", err
	}
	return deployScopePrefix + deployID + ":" + name, nil
}
