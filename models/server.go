package models

import "time"

// ServerRecord is one entry of the server inventory as stored in the record
// store. Credentials are never sent back to clients.
type ServerRecord struct {
	ID            string         `bson:"server_id" json:"id"`
	Name          string         `bson:"name" json:"name"`
	Host          string         `bson:"host" json:"host"`
	Port          int            `bson:"port" json:"port"`
	Username      string         `bson:"username" json:"username"`
	Password      string         `bson:"password,omitempty" json:"-"`
	PrivateKey    string         `bson:"private_key,omitempty" json:"-"`
	Status        string         `bson:"status" json:"status"`
	LastConnected *time.Time     `bson:"last_connected,omitempty" json:"lastConnected,omitempty"`
	Metrics       *ServerMetrics `bson:"metrics,omitempty" json:"metrics,omitempty"`
	CreatedAt     time.Time      `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `bson:"updated_at" json:"updatedAt"`
}

// ServerMetrics is the last stored metric snapshot for a server record.
type ServerMetrics struct {
	CPU    float64 `bson:"cpu" json:"cpu"`
	Memory float64 `bson:"memory" json:"memory"`
	Disk   float64 `bson:"disk" json:"disk"`
}

// Target builds the SSH target for this record, snapshotting host, port and
// credential as they are at lookup time.
func (s *ServerRecord) Target() SSHTarget {
	return SSHTarget{
		Host:       s.Host,
		Port:       s.Port,
		Username:   s.Username,
		Password:   s.Password,
		PrivateKey: s.PrivateKey,
	}
}

// ServerUpdateRequest lists the mutable fields of a server record.
type ServerUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Host     *string `json:"host,omitempty"`
	Port     *int    `json:"port,omitempty"`
	Username *string `json:"username,omitempty"`
	Status   *string `json:"status,omitempty"`
}
