package confine

// Capabilities describes what the host kernel can enforce.
type Capabilities struct {
	Landlock    bool
	LandlockABI int // 0=unavailable, 1-6=ABI version
}
