package model

// Class is a school class group; students log in with its name.
type Class struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}
