// Package domain contains core concepts of the chat system.
// This file defines user identities and their public profiles.
// No runtime, network, or UI logic should be added here.
package domain

// User is a resolved identity. The Online flag is owned by the presence
// store and only changes on connect/disconnect.
type User struct {
	ID     string
	Name   string
	Avatar string
	Online bool
}

// Profile is the public view of a user embedded in chat envelopes.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
}
