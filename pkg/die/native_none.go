//go:build !cgo || !die

package die

// DefaultNative reports ErrNotLinked: this binary was built without the engine.
func DefaultNative() (Native, error) {
	return nil, ErrNotLinked
}
