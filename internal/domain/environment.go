package domain

import "fmt"

type NetworkMode int

const (
	Mainnet NetworkMode = iota
	Testnet
)

func (m NetworkMode) String() string {
	if m == Testnet {
		return "testnet"
	}
	return "mainnet"
}

// Credentials is an API key pair bound to one network.
type Credentials struct {
	Mode      NetworkMode
	APIKey    string
	APISecret string
}

// String keeps the secret out of logs and error messages.
func (c Credentials) String() string {
	return fmt.Sprintf("%s key=%s secret=***", c.Mode, c.APIKey)
}

// Environment binds credentials to the endpoints of the same network.
type Environment struct {
	Mode         NetworkMode
	Credentials  Credentials
	RESTEndpoint string
	WSEndpoint   string
}
