package core

import "time"

// KDFParams are the scrypt parameters an entry was sealed with
type KDFParams struct {
	N     int `json:"n"`
	R     int `json:"r"`
	P     int `json:"p"`
	DKLen int `json:"dklen"`
}

// KeystoreEntry is one password-encrypted account secret
type KeystoreEntry struct {
	Address    string    `json:"address"`
	Ciphertext string    `json:"ciphertext"`
	Salt       string    `json:"salt"`
	IV         string    `json:"iv"`
	MAC        string    `json:"mac"`
	KDF        KDFParams `json:"kdf"`
	CreatedAt  time.Time `json:"createdAt"`
}
