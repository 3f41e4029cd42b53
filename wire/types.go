package wire

// Message TYPE values understood by the node. Unknown types decode fine and
// are dropped by the dispatcher.
const (
	TypeProfile         = "PROFILE"
	TypePost            = "POST"
	TypeDM              = "DM"
	TypePing            = "PING"
	TypeAck             = "ACK"
	TypeFollow          = "FOLLOW"
	TypeUnfollow        = "UNFOLLOW"
	TypeLike            = "LIKE"
	TypeFileOffer       = "FILE_OFFER"
	TypeFileChunk       = "FILE_CHUNK"
	TypeFileReceived    = "FILE_RECEIVED"
	TypeGroupCreate     = "GROUP_CREATE"
	TypeGroupUpdate     = "GROUP_UPDATE"
	TypeGroupMessage    = "GROUP_MESSAGE"
	TypeTicTacToeInvite = "TICTACTOE_INVITE"
	TypeTicTacToeMove   = "TICTACTOE_MOVE"
	TypeTicTacToeReply  = "TICTACTOE_MOVE_RESPONSE"
	TypeTicTacToeResult = "TICTACTOE_RESULT"
)

// Field names used across message types.
const (
	FieldType        = "TYPE"
	FieldUserID      = "USER_ID"
	FieldFrom        = "FROM"
	FieldTo          = "TO"
	FieldContent     = "CONTENT"
	FieldTimestamp   = "TIMESTAMP"
	FieldTTL         = "TTL"
	FieldMessageID   = "MESSAGE_ID"
	FieldToken       = "TOKEN"
	FieldStatus      = "STATUS"
	FieldDisplayName = "DISPLAY_NAME"

	FieldAvatarType     = "AVATAR_TYPE"
	FieldAvatarEncoding = "AVATAR_ENCODING"
	FieldAvatarSize     = "AVATAR_SIZE"
	FieldAvatarData     = "AVATAR_DATA"

	FieldPostTimestamp = "POST_TIMESTAMP"
	FieldAction        = "ACTION"

	FieldFileName    = "FILENAME"
	FieldFileSize    = "FILESIZE"
	FieldFileType    = "FILETYPE"
	FieldFileID      = "FILEID"
	FieldDescription = "DESCRIPTION"
	FieldTotalChunks = "TOTAL_CHUNKS"
	FieldChunkIndex  = "CHUNK_INDEX"
	FieldChunkSize   = "CHUNK_SIZE"
	FieldData        = "DATA"

	FieldGroupID   = "GROUP_ID"
	FieldGroupName = "GROUP_NAME"
	FieldMembers   = "MEMBERS"
	FieldAdd       = "ADD"
	FieldRemove    = "REMOVE"

	FieldGameID      = "GAMEID"
	FieldSymbol      = "SYMBOL"
	FieldPosition    = "POSITION"
	FieldTurn        = "TURN"
	FieldResult      = "RESULT"
	FieldWinningLine = "WINNING_LINE"
	FieldBoard       = "BOARD"
	FieldCurrentTurn = "CURRENT_TURN"
	FieldWhoseTurn   = "WHOSE_TURN"
	FieldFinished    = "FINISHED"
	FieldWinner      = "WINNER"
)

// LIKE action values.
const (
	ActionLike   = "LIKE"
	ActionUnlike = "UNLIKE"
)

// STATUS values for ACK and FILE_RECEIVED.
const (
	StatusReceived = "RECEIVED"
	StatusComplete = "COMPLETE"
)

// RESULT values for TICTACTOE_RESULT.
const (
	ResultWin     = "WIN"
	ResultLoss    = "LOSS"
	ResultDraw    = "DRAW"
	ResultForfeit = "FORFEIT"
)

// DefaultTTL is the validity window in seconds applied to posts, DMs, and
// minted tokens when the sender does not choose one.
const DefaultTTL = 3600

// timestampedTypes lists the types whose TIMESTAMP field Encode fills in
// when absent. TICTACTOE_MOVE carries a TURN counter instead, and PING/ACK
// are timeless liveness chatter.
var timestampedTypes = map[string]bool{
	TypePost:            true,
	TypeDM:              true,
	TypeFollow:          true,
	TypeUnfollow:        true,
	TypeLike:            true,
	TypeFileOffer:       true,
	TypeFileReceived:    true,
	TypeGroupCreate:     true,
	TypeGroupUpdate:     true,
	TypeGroupMessage:    true,
	TypeTicTacToeInvite: true,
	TypeTicTacToeReply:  true,
	TypeTicTacToeResult: true,
}
