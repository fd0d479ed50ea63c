package remote

// libsqlAvailable is set when the libSQL driver is linked in. The driver
// ships native libraries and needs cgo.
var libsqlAvailable bool

// Dialects returns the dialects usable in this build.
func Dialects() []Dialect {
	out := []Dialect{DialectSQLite, DialectPostgres}
	if libsqlAvailable {
		out = append(out, DialectLibSQL)
	}
	return out
}
