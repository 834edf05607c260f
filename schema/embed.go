package schema

import _ "embed"

// ProfileV1Schema contains the JSON schema for run profiles.
//
//go:embed profile.v1.json
var ProfileV1Schema []byte
