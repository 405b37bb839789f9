package jsdrv

// Portnumbers structs can contain all TCP port numbers used by the driver.
type Portnumbers struct {
	RPC       int
	Status    int
	Blocks    int
	Summaries int
}

// Ports globally holds all TCP port numbers used by the driver.
var Ports Portnumbers

func setPortnumbers(base int) {
	Ports.RPC = base
	Ports.Status = base + 1
	Ports.Blocks = base + 2
	Ports.Summaries = base + 3
}
