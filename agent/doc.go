// Package agent provides the compatibility facades the orchestration layer
// calls in place of its former REACT-style agents.
//
// Each facade owns one engine.Adapter and translates its legacy method set
// into adapter runs:
//
//   - ConversationalAgent / TeamConversationalAgent: Chat, GenerateResponse, TeamChat
//   - DialogueAgentWithTools / TeamDialogueAgent: Send, GenerateReply, CoordinateWithTeam
//
// Callers that only need a capability depend on Chatter, ToolSender or
// TeamChatter. Errors from the adapter are returned unchanged, so
// errors.As still finds *core.WorkflowError and friends, and a failed call
// never leaves a partial turn behind.
//
// Team variants join a team.Team, read its context before every turn and
// publish their last output under "last_output:<name>" afterwards.
package agent
