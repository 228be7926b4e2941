package drive

// With creates an Axis, runs fn and disables the axis on every exit path,
// panics included. A disable failure is only returned when fn succeeded.
func With(link Sender, addr Address, fn func(a *Axis) error) (err error) {
	a, err := NewAxis(link, addr)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}
