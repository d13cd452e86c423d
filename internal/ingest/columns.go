package ingest

// ActivityColumns is the fixed vocabulary of webhook columns that name
// distinct LiveOps activity types. Fan-out scans these in order, so
// candidates from one record keep a stable relative order.
var ActivityColumns = []string{
	"Launches",
	"Fairs",
	"Chip/Rockets Store Sale",
	"PO 1",
	"PO 2",
	"SeasonPass",
	"Album Sale",
	"RBS",
	"EBS",
	"Piggy Bank",
	"Wheel Spin",
	"Web Shop Sale",
	"Event 1",
	"Event 2",
	"Powerplay Promo",
	"Lever/Promo 1",
	"Lever/Promo 2",
	"Bash Wins/Tourney",
	"Rooms Lever",
	"Discounted Card Cost (DCC)",
	"Bash Care Package",
	"Slots Promo",
	"Season Pass Challenge",
	"Web",
	"VIP",
	"Bold Beats I/II/III",
	"CRM Promo-1",
	"CRM Promotions 2",
	"Room Config Changes",
}
