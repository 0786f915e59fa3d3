package fixed

// Calc chains checked arithmetic and keeps the first error. After an error
// every further operation returns Zero, so a formula can be written inline
// and checked once with Err.
type Calc struct {
	err error
}

// Err returns the first error seen, if any.
func (c *Calc) Err() error { return c.err }

func (c *Calc) Add(a, b Uint) Uint {
	return c.keep(a.Add(b))
}

func (c *Calc) Sub(a, b Uint) Uint {
	return c.keep(a.Sub(b))
}

func (c *Calc) Mul(a, b Uint) Uint {
	return c.keep(a.Mul(b))
}

func (c *Calc) Div(a, b Uint) Uint {
	return c.keep(a.Div(b))
}

// MulDiv returns a*b/d.
func (c *Calc) MulDiv(a, b, d Uint) Uint {
	return c.keep(a.MulDiv(b, d))
}

// Plus returns s+x on a signed value.
func (c *Calc) Plus(s Signed, x Uint) Signed {
	if c.err != nil {
		return Signed{}
	}
	r, err := s.Plus(x)
	if err != nil {
		c.err = err
		return Signed{}
	}
	return r
}

// Minus returns s-x on a signed value.
func (c *Calc) Minus(s Signed, x Uint) Signed {
	if c.err != nil {
		return Signed{}
	}
	r, err := s.Minus(x)
	if err != nil {
		c.err = err
		return Signed{}
	}
	return r
}

func (c *Calc) keep(v Uint, err error) Uint {
	if c.err != nil {
		return Zero
	}
	if err != nil {
		c.err = err
		return Zero
	}
	return v
}
