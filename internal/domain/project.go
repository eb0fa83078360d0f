package domain

import "github.com/google/uuid"

// ProjectUser is a collaborator on a project
type ProjectUser struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Project is the collaborator service's view of a project: the seed for
// the file tree store and the target of an explicit save. Read-only to
// the session engine except for the persisted file tree snapshot.
type Project struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Users    []ProjectUser `json:"users"`
	FileTree FileTree      `json:"fileTree"`
}
