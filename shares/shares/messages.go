// Copyright © 2024 Benjamin Schmitz

// This file is part of Seraph <https://github.com/Vortex375/seraph>.

// Seraph is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License
// as published by the Free Software Foundation,
// either version 3 of the License, or (at your option)
// any later version.

// Seraph is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with Seraph.  If not, see <http://www.gnu.org/licenses/>.

package shares

// ShareUpdate changes the mutable fields of a share. Nil fields are kept.
// Target changes of group-like shares apply to User only.
type ShareUpdate struct {
	Permissions *Permissions `json:"permissions,omitempty"`
	Attributes  *Attributes  `json:"attributes,omitempty"`
	Target      *string      `json:"target,omitempty"`
	Status      *Status      `json:"status,omitempty"`
	User        string       `json:"user,omitempty"`
}

type ShareFilter struct {
	Initiator  string    `json:"initiator,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	ShareType  ShareType `json:"shareType,omitempty"`
	NodeId     string    `json:"nodeId,omitempty"`
	Reshares   bool      `json:"reshares,omitempty"`
}

type ShareCrudRequest struct {
	Operation string       `json:"operation"`
	Id        string       `json:"id,omitempty"`
	Share     *Share       `json:"share,omitempty"`
	Update    *ShareUpdate `json:"update,omitempty"`
	Filter    *ShareFilter `json:"filter,omitempty"`
}

type ShareCrudResponse struct {
	Error string  `json:"error"`
	Share []Share `json:"share"`
}
