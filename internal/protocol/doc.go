// Package protocol owns the packet contracts shared by every instrument frame
// family.
//
// Ownership boundary:
// - SendPacket / RecvPacket capabilities and result states
// - checksum algorithms and the checksum enforcement policy
// - bit helpers used by status and control bytes
//
// Concrete frame layouts live in protocol/frame.
package protocol
