// Package chats holds the conversation model shared by every stage of the
// director pipeline: content parts, messages, roles and the mutable chat
// container that stage agents and tool delegates complete against.
package chats
