package tray

import "fyne.io/fyne/v2"

// iconSVG is a dashed selection box with a spark, drawn for 16px trays.
const iconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <rect x="1.5" y="4" width="9" height="7" fill="none" stroke="#0078d4" stroke-width="1.5" stroke-dasharray="2,1"/>
  <line x1="3.5" y1="7.5" x2="8.5" y2="7.5" stroke="#333333" stroke-width="1" stroke-linecap="round"/>
  <path d="M12.5 1 L13.3 3.2 L15.5 4 L13.3 4.8 L12.5 7 L11.7 4.8 L9.5 4 L11.7 3.2 Z" fill="#f5a623"/>
</svg>`

// pausedSVG is the same box greyed out.
const pausedSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <rect x="1.5" y="4" width="9" height="7" fill="none" stroke="#999999" stroke-width="1.5" stroke-dasharray="2,1"/>
  <rect x="11" y="1.5" width="1.5" height="5" fill="#999999"/>
  <rect x="13.5" y="1.5" width="1.5" height="5" fill="#999999"/>
</svg>`

var (
	activeIcon = fyne.NewStaticResource("luxselect.svg", []byte(iconSVG))
	pausedIcon = fyne.NewStaticResource("luxselect-paused.svg", []byte(pausedSVG))
)
