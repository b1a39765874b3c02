package message

// Tag is the discriminant of a message.
type Tag string

// Wrapper and generic reply tags.
const (
	TagMultiple Tag = "multiple"
	TagOK       Tag = "ok"
	TagError    Tag = "error"
)

// Server -> client (in-game).
const (
	TagUpdate               Tag = "update"
	TagRemove               Tag = "remove"
	TagOpponentMove         Tag = "opponentMove"
	TagOpponentAttack       Tag = "opponentAttack"
	TagSetCurrentPlayer     Tag = "setCurrentPlayer"
	TagNewTurn              Tag = "newTurn"
	TagSetDead              Tag = "setDead"
	TagGameEnded            Tag = "gameEnded"
	TagChat                 Tag = "chat"
	TagDisconnect           Tag = "disconnect"
	TagChooseFoundingFather Tag = "chooseFoundingFather"
	TagDeliverGift          Tag = "deliverGift"
	TagIndianDemand         Tag = "indianDemand"
	TagReconnect            Tag = "reconnect"
	TagSetAI                Tag = "setAI"
	TagMonarchAction        Tag = "monarchAction"
	TagRemoveGoods          Tag = "removeGoods"
	TagLostCityRumour       Tag = "lostCityRumour"
	TagSetStance            Tag = "setStance"
	TagGiveIndependence     Tag = "giveIndependence"
)

// Server -> client (pre-game).
const (
	TagAddPlayer                 Tag = "addPlayer"
	TagLogin                     Tag = "login"
	TagLogout                    Tag = "logout"
	TagReady                     Tag = "ready"
	TagSetAvailable              Tag = "setAvailable"
	TagSetColor                  Tag = "setColor"
	TagSetNation                 Tag = "setNation"
	TagSetNationType             Tag = "setNationType"
	TagStartGame                 Tag = "startGame"
	TagUpdateGameOptions         Tag = "updateGameOptions"
	TagUpdateMapGeneratorOptions Tag = "updateMapGeneratorOptions"
)

// Client -> server intents.
const (
	TagMove                   Tag = "move"
	TagAttack                 Tag = "attack"
	TagBuildColony            Tag = "buildColony"
	TagSetDestination         Tag = "setDestination"
	TagLoadCargo              Tag = "loadCargo"
	TagUnloadCargo            Tag = "unloadCargo"
	TagBuyGoods               Tag = "buyGoods"
	TagSellGoods              Tag = "sellGoods"
	TagEquipUnit              Tag = "equipunit"
	TagWork                   Tag = "work"
	TagChangeState            Tag = "changeState"
	TagChangeWorkType         Tag = "changeWorkType"
	TagAssignTeacher          Tag = "assignTeacher"
	TagSetCurrentlyBuilding   Tag = "setCurrentlyBuilding"
	TagTrainUnitInEurope      Tag = "trainUnitInEurope"
	TagRecruitUnitInEurope    Tag = "recruitUnitInEurope"
	TagEmigrateUnitInEurope   Tag = "emigrateUnitInEurope"
	TagBoardShip              Tag = "boardShip"
	TagLeaveShip              Tag = "leaveShip"
	TagEmbark                 Tag = "embark"
	TagDisembark              Tag = "disembark"
	TagTradeProposition       Tag = "tradeProposition"
	TagTrade                  Tag = "trade"
	TagBuyProposition         Tag = "buyProposition"
	TagBuy                    Tag = "buy"
	TagPayForBuilding         Tag = "payForBuilding"
	TagPayArrears             Tag = "payArrears"
	TagSkipUnit               Tag = "skipUnit"
	TagDisbandUnit            Tag = "disbandUnit"
	TagEndTurn                Tag = "endTurn"
	TagScoutIndianSettlement  Tag = "scoutIndianSettlement"
	TagMissionaryAtSettlement Tag = "missionaryAtSettlement"
	TagSpySettlement          Tag = "spySettlement"
	TagAskSkill               Tag = "askSkill"
	TagLearnSkill             Tag = "learnSkill"
	TagDiplomaticTrade        Tag = "diplomaticTrade"
	TagAssignTradeRoute       Tag = "assignTradeRoute"
	TagUpdateTradeRoute       Tag = "updateTradeRoute"
	TagSetTradeRoutes         Tag = "setTradeRoutes"
	TagCashInTreasureTrain    Tag = "cashInTreasureTrain"
	TagGetForeignAffairs      Tag = "getForeignAffairs"
	TagClaimLand              Tag = "claimLand"
	TagRequestLaunch          Tag = "requestLaunch"
)

// Object element tags carried inside update/remove and as payloads.
const (
	TagGame           Tag = "game"
	TagPlayer         Tag = "player"
	TagUnit           Tag = "unit"
	TagTile           Tag = "tile"
	TagSettlement     Tag = "settlement"
	TagTradeRoute     Tag = "tradeRoute"
	TagStop           Tag = "stop"
	TagGoods          Tag = "goods"
	TagOption         Tag = "option"
	TagFoundingFather Tag = "foundingFather"
	TagModelMessage   Tag = "modelMessage"
	TagObject         Tag = "object"
	TagStance         Tag = "stance"
)

// InGameTags is the closed set of server pushes handled during gameplay.
var InGameTags = []Tag{
	TagUpdate, TagRemove, TagOpponentMove, TagOpponentAttack,
	TagSetCurrentPlayer, TagNewTurn, TagSetDead, TagGameEnded, TagChat,
	TagDisconnect, TagError, TagChooseFoundingFather, TagDeliverGift,
	TagIndianDemand, TagReconnect, TagSetAI, TagMonarchAction,
	TagRemoveGoods, TagLostCityRumour, TagSetStance, TagGiveIndependence,
}

// PreGameTags is the closed set of server pushes handled in the lobby.
var PreGameTags = []Tag{
	TagAddPlayer, TagChat, TagError, TagLogin, TagLogout, TagReady,
	TagSetAvailable, TagSetColor, TagSetNation, TagSetNationType,
	TagStartGame, TagUpdate, TagUpdateGameOptions,
	TagUpdateMapGeneratorOptions,
}
