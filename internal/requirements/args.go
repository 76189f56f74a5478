package requirements

// SplitArgs separates requirement-file references from the options that
// should be passed through to the delegate. The token after -r or
// --requirement is always taken as a path, even one that looks like a
// flag; a trailing -r with no value is dropped.
func SplitArgs(args []string) (paths, other []string) {
	wasR := false
	for _, arg := range args {
		switch {
		case wasR:
			paths = append(paths, arg)
			wasR = false
		case arg == "-r" || arg == "--requirement":
			wasR = true
		default:
			other = append(other, arg)
		}
	}
	return paths, other
}
