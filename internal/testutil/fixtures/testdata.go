// Package fixtures provides shared test data constants for the Tollgate
// Core test suite.
//
// Using common constants for record identities and secret material
// prevents magic strings in tests and ensures consistency across packages.
package fixtures

// Standard record identity values used across provider and client tests.
const (
	// RecordID is the default secret record ID for unit tests.
	RecordID = "edge-1"

	// AltRecordID is an alternative record ID for tests requiring two
	// records.
	AltRecordID = "edge-2"

	// MissingRecordID is a record ID that test stores never populate.
	// Use it to exercise not-found paths.
	MissingRecordID = "edge-absent"

	// DeviceID is the default device identifier carried in envelope
	// token claims.
	DeviceID = "sensor-7f3a"
)

// Standard secret material values used in token and verification tests.
const (
	// HMACSecret is the shared secret for signed-timestamp tokens. The
	// value is raw (no decoding); tests derive signatures from it with
	// HMAC-SHA256.
	HMACSecret = "my-secret-key-2024"

	// AESKeyHex is a hex-encoded 32-byte AES-256 key for
	// encrypted-envelope tokens. Decodes to bytes 0x01, 0x23, 0x45...
	// repeating.
	AESKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	// Timestamp is a fixed issue time (2025-01-19T18:40:00Z) in the
	// decimal form tokens carry on the wire.
	Timestamp = "1737312000"

	// TimestampUnix is [Timestamp] as an int64 for clock injection.
	TimestampUnix int64 = 1737312000
)

// Standard identity values used in secret-service client tests.
const (
	// TestServiceName is the default calling-service identity for
	// minted request tokens.
	TestServiceName = "edge-gateway"

	// TestIssuer is the default issuer for request tokens.
	TestIssuer = "https://auth.tollgate.test"
)

// Standard configuration values used in config loader tests.
const (
	// TestEnvPrefix is the default environment variable prefix for config tests.
	TestEnvPrefix = "TESTAPP"

	// TestConfigYAML is a minimal valid YAML configuration for tests.
	TestConfigYAML = `host: localhost
port: 8080
database: testdb
`

	// TestConfigJSON is a minimal valid JSON configuration for tests.
	TestConfigJSON = `{
  "host": "localhost",
  "port": 8080,
  "database": "testdb"
}`
)

// Standard database configuration values used in postgres client tests.
const (
	// TestDBHost is the default database host for test configurations.
	TestDBHost = "localhost"

	// TestDBPort is the default database port for test configurations.
	TestDBPort = 5432

	// TestDBName is the default database name for test configurations.
	TestDBName = "testdb"

	// TestDBUser is the default database user for test configurations.
	TestDBUser = "testuser"

	// TestDBPassword is the default database password for test configurations.
	// This is a deliberately weak value suitable only for unit tests.
	TestDBPassword = "testpass"
)
