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

package events

var NodeWrittenTopic = Topic[NodeWrittenEvent]{
	Name:  "seraph.node.written",
	Codec: AvroCodec[NodeWrittenEvent]{NodeWrittenEventSchema},
}

var NodeRenamedTopic = Topic[NodeRenamedEvent]{
	Name:  "seraph.node.renamed",
	Codec: AvroCodec[NodeRenamedEvent]{NodeRenamedEventSchema},
}

var NodeDeletedTopic = Topic[NodeDeletedEvent]{
	Name:  "seraph.node.deleted",
	Codec: AvroCodec[NodeDeletedEvent]{NodeDeletedEventSchema},
}
