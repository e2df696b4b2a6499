package shader

// LocationFunc resolves a uniform name in a linked program. The boolean reports
// whether the uniform exists; any location it returns with true is valid,
// including 0.
type LocationFunc func(name string) (int32, bool)

// Binding is a parameter resolved against a program.
type Binding struct {
	Name     string
	Location int32
	Param    Param
}

// Bind resolves every parameter through lookup and returns the bindings in name
// order. Parameters the program does not declare are dropped.
func Bind(params Params, lookup LocationFunc) []Binding {
	var bindings []Binding
	for _, name := range params.Names() {
		loc, ok := lookup(name)
		if !ok {
			continue
		}
		bindings = append(bindings, Binding{Name: name, Location: loc, Param: params[name]})
	}
	return bindings
}
