package authz

// MethodTable maps a full gRPC method name to the capability it requires.
// Methods absent from the table are public.
type MethodTable map[string]string

// Lookup returns the capability for method and whether the method is guarded.
func (t MethodTable) Lookup(method string) (string, bool) {
	c, ok := t[method]
	return c, ok
}
