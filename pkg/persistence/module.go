package persistence

import "fmt"

// Driver selects the storage backend.
type Driver string

const (
	DriverMongo    Driver = "mongo"
	DriverPostgres Driver = "postgres"
)

// ParseDriver validates a driver name from flags or environment.
// An empty name selects postgres.
func ParseDriver(s string) (Driver, error) {
	switch d := Driver(s); d {
	case DriverMongo, DriverPostgres:
		return d, nil
	case "":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unknown persistence driver %q (want mongo or postgres)", s)
	}
}
